// Package browser owns a single long-lived headless Chrome process and
// lends out tabs scoped to one logical operation each.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
)

type Config struct {
	// shown window instead of headless, for debugging scrapes locally
	Headful bool `json:"headful"`
	// required when running as root in a container
	NoSandbox bool   `json:"no_sandbox"`
	ExecPath  string `json:"exec_path"`
}

type Manager struct {
	cfg Config

	mu          sync.Mutex
	browserCtx  context.Context
	browserStop context.CancelFunc
	allocStop   context.CancelFunc
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start launches the browser process if it is not already running.
// AcquirePage calls it lazily; servers should call it once at startup
// so a broken Chrome install is fatal there instead of mid-scrape.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if m.browserCtx != nil {
		return nil
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if m.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.NoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// an empty Run forces the process to spawn now
	err := chromedp.Run(browserCtx)
	if err != nil {
		browserStop()
		allocStop()
		return fmt.Errorf("launch browser: %w", err)
	}

	slog.Info("browser process launched", "headful", m.cfg.Headful, "no_sandbox", m.cfg.NoSandbox)

	m.browserCtx = browserCtx
	m.browserStop = browserStop
	m.allocStop = allocStop
	return nil
}

// AcquirePage opens a fresh tab. The caller owns it exclusively and
// must Close it; the manager does not track page lifetime.
func (m *Manager) AcquirePage() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.startLocked()
	if err != nil {
		return nil, err
	}

	tabCtx, tabStop := chromedp.NewContext(m.browserCtx)
	return &Page{ctx: tabCtx, stop: tabStop}, nil
}

// Shutdown closes the browser process. It is idempotent and clears
// internal state, so a later AcquirePage relaunches from scratch.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCtx == nil {
		return
	}

	slog.Info("shutting down browser process")

	// Cancel gives Chrome a chance to exit cleanly before the
	// allocator kills it.
	err := chromedp.Cancel(m.browserCtx)
	if err != nil {
		slog.Warn("failed to close browser cleanly", "err", err)
	}
	m.browserStop()
	m.allocStop()

	m.browserCtx = nil
	m.browserStop = nil
	m.allocStop = nil
}
