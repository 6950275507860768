package stealth

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// botIndicators are phrases blocking pages show instead of content.
var botIndicators = []string{
	"verify you are human",
	"checking your browser",
	"are you a robot",
	"access denied",
	"unusual traffic",
	"please enable javascript and cookies",
	"attention required",
	"captcha",
	"ddos protection",
}

// rateLimitPhrases signal throttling rather than blocking.
var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"slow down",
	"requests from your network",
	"try again later",
}

// challengeSelector is the known challenge-widget element to poll for.
const challengeSelector = `#challenge-form, #challenge-running, .cf-challenge, iframe[src*="challenges"]`

// ContainsBotIndicator reports whether rendered content reads like a
// bot-challenge page rather than real content.
func ContainsBotIndicator(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range botIndicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ContainsRateLimitMessage reports whether rendered content reads like a
// throttling message.
func ContainsRateLimitMessage(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// CheckNotBlocked scans the rendered page for bot indicators and, when one is
// found, waits briefly for the challenge to resolve itself before scanning
// again. Returns true when it is safe to proceed.
func (b *Browser) CheckNotBlocked(ctx context.Context) (bool, error) {
	content, err := pageText(ctx)
	if err != nil {
		return false, err
	}
	if !ContainsBotIndicator(content) {
		return true, nil
	}
	b.logger.Info("bot indicator detected, waiting for challenge to resolve")
	if err := sleepCtx(ctx, 5*time.Second); err != nil {
		return false, err
	}
	content, err = pageText(ctx)
	if err != nil {
		return false, err
	}
	return !ContainsBotIndicator(content), nil
}

// WaitForChallenge polls for a known challenge widget to appear and then
// detach, with an overall timeout. Returns true if no challenge was ever
// present or it resolved in time.
func (b *Browser) WaitForChallenge(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	present := false
	for time.Now().Before(deadline) {
		var count int
		err := chromedp.Run(ctx, chromedp.Evaluate(
			`document.querySelectorAll(`+"`"+challengeSelector+"`"+`).length`, &count))
		if err != nil {
			return false, err
		}
		if count == 0 {
			if !present {
				return true, nil
			}
			b.logger.Debug("challenge widget detached")
			return true, nil
		}
		present = true
		if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
			return false, err
		}
	}
	return false, nil
}

// CheckRateLimited scans for throttling messages. When one is found it sleeps
// a randomized 30-60s backoff and returns true, signaling the caller to
// retry rather than continue with the current content.
func (b *Browser) CheckRateLimited(ctx context.Context) (bool, error) {
	content, err := pageText(ctx)
	if err != nil {
		return false, err
	}
	if !ContainsRateLimitMessage(content) {
		return false, nil
	}
	backoff := RateLimitBackoff()
	b.logger.Warn("rate limit message detected, backing off",
		zap.Duration("backoff", backoff))
	if err := sleepCtx(ctx, backoff); err != nil {
		return true, err
	}
	return true, nil
}

// RateLimitBackoff returns a randomized 30-60s cooldown.
func RateLimitBackoff() time.Duration {
	return 30*time.Second + time.Duration(rand.Int63n(int64(30*time.Second)))
}

func pageText(ctx context.Context) (string, error) {
	var content string
	err := chromedp.Run(ctx, chromedp.Evaluate(
		`document.body ? document.body.innerText : ''`, &content))
	return content, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
