// Package stealth bundles the headless-browser session mutations that keep a
// harvesting session from looking like automated traffic, plus the
// post-navigation checks engines run before trusting rendered content. The
// mutations are named capabilities so the underlying browser-automation
// library can be swapped without touching call sites.
package stealth

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Persona is the browser identity a session reports.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Viewport  Viewport
}

// Viewport is the reported window size.
type Viewport struct {
	Width  int
	Height int
}

var timezones = []string{
	"America/New_York", "America/Chicago", "America/Los_Angeles",
	"Europe/London", "Europe/Berlin",
}

var viewports = []Viewport{
	{1920, 1080}, {1536, 864}, {1440, 900}, {1366, 768}, {1680, 1050},
}

var languageSets = [][]string{
	{"en-US", "en"},
	{"en-GB", "en"},
	{"en-US", "en", "fr"},
}

// RandomPersona builds a plausible persona with randomized timezone,
// language list, and viewport.
func RandomPersona(userAgent string) Persona {
	langs := languageSets[rand.Intn(len(languageSets))]
	return Persona{
		UserAgent: userAgent,
		Platform:  "Win32",
		Languages: langs,
		Timezone:  timezones[rand.Intn(len(timezones))],
		Locale:    langs[0],
		Viewport:  viewports[rand.Intn(len(viewports))],
	}
}

// Browser is the stealth capability applied to a headless session. The zero
// value enables every mutation.
type Browser struct {
	logger *zap.Logger
}

// New builds a Browser capability. logger may be nil.
func New(logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{logger: logger}
}

// Apply returns the full pre-navigation mutation sequence for persona.
func (b *Browser) Apply(p Persona) chromedp.Tasks {
	b.logger.Debug("applying stealth persona",
		zap.String("timezone", p.Timezone),
		zap.String("locale", p.Locale))
	return chromedp.Tasks{
		b.persona(p),
		b.MaskAutomation(),
		b.MockPlugins(),
		b.MockPermissions(),
		b.BlockWebRTC(),
		b.NoiseCanvas(),
		b.RandomizeLocale(p),
	}
}

// MaskAutomation hides webdriver and automation globals.
func (b *Browser) MaskAutomation() chromedp.Action { return injectScript(maskAutomationJS) }

// MockPlugins fabricates a plausible plugin/mimeType list.
func (b *Browser) MockPlugins() chromedp.Action { return injectScript(mockPluginsJS) }

// MockPermissions denies notification permission queries.
func (b *Browser) MockPermissions() chromedp.Action { return injectScript(mockPermissionsJS) }

// BlockWebRTC neuters media-device enumeration and peer connections.
func (b *Browser) BlockWebRTC() chromedp.Action { return injectScript(blockWebRTCJS) }

// NoiseCanvas adds low-magnitude noise to canvas pixel readback.
func (b *Browser) NoiseCanvas() chromedp.Action { return injectScript(noiseCanvasJS) }

// RandomizeLocale overrides the reported timezone and locale.
func (b *Browser) RandomizeLocale(p Persona) chromedp.Action {
	return chromedp.Tasks{
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
	}
}

// persona sets the user agent, viewport, and language headers.
func (b *Browser) persona(p Persona) chromedp.Action {
	tasks := chromedp.Tasks{}
	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform))
	}
	if p.Viewport.Width > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(p.Viewport.Width), int64(p.Viewport.Height)))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguageHeader(p.Languages),
		}))
	}
	return tasks
}

func acceptLanguageHeader(langs []string) string {
	out := langs[0]
	q := 0.9
	for _, l := range langs[1:] {
		out += fmt.Sprintf(",%s;q=%.1f", l, q)
		q -= 0.1
	}
	return out
}

func injectScript(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		if err != nil {
			return fmt.Errorf("inject stealth script: %w", err)
		}
		return nil
	})
}
