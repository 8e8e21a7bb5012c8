package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Browser renders a page and returns its final HTML.
type Browser interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// Playwright renders pages in Chromium. When WSEndpoint is set it attaches to a
// remote browser over CDP; otherwise it launches a local headless instance.
type Playwright struct {
	WSEndpoint string
	Timeout    time.Duration
	UserAgent  string
	logger     *slog.Logger
}

// NewPlaywright returns a Playwright browser. A non-positive timeout
// defaults to 20s per navigation and per wait.
func NewPlaywright(wsEndpoint string, timeout time.Duration) *Playwright {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Playwright{
		WSEndpoint: wsEndpoint,
		Timeout:    timeout,
		UserAgent:  defaultUserAgent,
		logger:     slog.Default(),
	}
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Render navigates to url, waits for waitSelector (best-effort) and returns
// the rendered document. The browser session is always released.
func (p *Playwright) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	instance, err := pw.Run()
	if err != nil {
		return "", fmt.Errorf("starting playwright: %w", err)
	}
	defer instance.Stop()

	var browser pw.Browser
	if p.WSEndpoint != "" {
		browser, err = instance.Chromium.ConnectOverCDP(p.WSEndpoint, pw.BrowserTypeConnectOverCDPOptions{
			Timeout: pw.Float(float64(p.Timeout.Milliseconds())),
		})
	} else {
		browser, err = instance.Chromium.Launch(pw.BrowserTypeLaunchOptions{
			Headless: pw.Bool(true),
		})
	}
	if err != nil {
		return "", fmt.Errorf("opening browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage(pw.BrowserNewPageOptions{
		UserAgent: pw.String(p.UserAgent),
	})
	if err != nil {
		return "", fmt.Errorf("creating page: %w", err)
	}
	defer page.Close()

	timeoutMS := float64(p.Timeout.Milliseconds())
	page.SetDefaultTimeout(timeoutMS)

	if _, err := page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   pw.Float(timeoutMS),
	}); err != nil {
		return "", fmt.Errorf("navigating to %s: %w", url, err)
	}

	if waitSelector != "" {
		err := page.Locator(waitSelector).First().WaitFor(pw.LocatorWaitForOptions{
			Timeout: pw.Float(timeoutMS),
		})
		if err != nil {
			if errors.Is(err, pw.ErrTimeout) {
				p.logger.Warn("trend rows did not render before timeout", "url", url, "timeout", p.Timeout)
			} else {
				return "", fmt.Errorf("waiting for trend rows: %w", err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}
