package crawler

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderedFetcher fetches pages through a headless browser for sources
// that build their listings with JavaScript. One fetcher is scoped to
// one source's crawl; Close must be called when the source finishes.
type RenderedFetcher struct {
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	waitSelector string
	timeout      time.Duration
}

// NewRenderedFetcher starts a headless browser allocator. waitSelector,
// when non-empty, is waited for before the DOM is captured; otherwise a
// short settle sleep is used.
func NewRenderedFetcher(waitSelector string, timeout time.Duration) *RenderedFetcher {
	if timeout == 0 {
		timeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &RenderedFetcher{
		allocCtx:     allocCtx,
		allocCancel:  cancel,
		waitSelector: waitSelector,
		timeout:      timeout,
	}
}

// Fetch implements Fetcher. The rendered DOM is returned as HTML; the
// status is reported as 200 since navigation errors surface as err.
func (f *RenderedFetcher) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	taskCtx, cancelTask := chromedp.NewContext(f.allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, f.timeout)
	defer cancelTimeout()

	go func() {
		select {
		case <-ctx.Done():
			cancelTimeout()
		case <-taskCtx.Done():
		}
	}()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if f.waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(f.waitSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(2*time.Second))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, 0, err
	}
	return []byte(html), 200, nil
}

// Close shuts the browser allocator down
func (f *RenderedFetcher) Close() {
	f.allocCancel()
}
