package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/listing"
	"github.com/kleinsuche/kleinsuche/internal/telemetry"
)

// Config controls the behavior of the browser-backed scraper.
type Config struct {
	UserAgent string
	// NavTimeout bounds a single page navigation. Result pages can be very
	// slow to settle, hence the generous default.
	NavTimeout time.Duration
}

const defaultNavTimeout = 120 * time.Second

// Chromedp implements Searcher with a shared headless Chrome instance.
// The browser allocator is long-lived; Search fails with ErrUnavailable
// until Start has been called.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp returns an unstarted browser scraper.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg, logger: logger}
}

// Start launches the headless Chrome allocator.
func (c *Chromedp) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocator != nil {
		return nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	c.allocator, c.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	return nil
}

// Close tears down the browser allocator.
func (c *Chromedp) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocator = nil
		c.allocCancel = nil
	}
}

// Search navigates the result pages for req and extracts the listings.
// A failure on the first page is fatal; later pages degrade to the
// results gathered so far.
func (c *Chromedp) Search(ctx context.Context, req SearchRequest) ([]listing.Listing, error) {
	c.mu.Lock()
	alloc := c.allocator
	c.mu.Unlock()
	if alloc == nil {
		return nil, ErrUnavailable
	}
	if req.PageCount <= 0 {
		req.PageCount = 1
	}

	start := time.Now()
	defer func() { telemetry.ObserveScrape(time.Since(start)) }()

	taskCtx, cancel := chromedp.NewContext(alloc)
	defer cancel()

	var all []listing.Listing
	for page := 1; page <= req.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search canceled: %w", err)
		}
		html, err := c.renderPage(taskCtx, searchURL(req, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			c.logger.Warn("result page load failed",
				zap.Int("page", page), zap.Error(err))
			break
		}
		ads, err := parseAds(html)
		if err != nil {
			return nil, err
		}
		all = append(all, ads...)
	}
	return all, nil
}

func (c *Chromedp) renderPage(ctx context.Context, pageURL string) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavTimeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		c.setupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	return html, nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
