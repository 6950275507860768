package static

import (
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/engine/markup"
	"github.com/grantscope/harvester/internal/harvest"
)

func (e *Engine) extract(source harvest.SourceConfig, page *fetchedPage) ([]harvest.RawGrantData, error) {
	records, err := markup.Extract(source, page.body, e.now(), e.logger)
	if err != nil {
		return nil, err
	}
	e.logger.Info("static extraction complete",
		zap.String("source", source.ID), zap.Int("records", len(records)))
	return records, nil
}
