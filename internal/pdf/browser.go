package pdf

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/logger"
)

// BrowserConfig configures the shared headless browser.
type BrowserConfig struct {
	// ExecPath overrides the Chrome/Chromium executable.
	ExecPath string
	// NoSandbox is required when running as root or in most containers.
	NoSandbox bool
	Logger    *zap.Logger
}

// Browser owns one lazily launched headless browser. Each Print opens its
// own tab, so concurrent prints share the process but not pages.
type Browser struct {
	cfg    BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowser(cfg BrowserConfig) *Browser {
	return &Browser{
		cfg:    cfg,
		logger: logger.OrNop(cfg.Logger).Named("browser"),
	}
}

// IsConnected reports whether a launched browser is still alive.
func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectedLocked()
}

func (b *Browser) connectedLocked() bool {
	if b.browserCtx == nil || b.browserCtx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(b.browserCtx)
	return c != nil && c.Browser != nil
}

// ensure returns a live browser context, launching or relaunching as needed.
func (b *Browser) ensure() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectedLocked() {
		return b.browserCtx, nil
	}
	if b.browserCtx != nil {
		b.logger.Warn("browser disconnected, relaunching")
	}
	b.shutdownLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("font-render-hinting", "none"),
		// Rendered documents are loaded from temp files.
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, apperr.Rasterization(err, "launch browser")
	}
	b.allocCancel, b.browserCtx, b.browserCancel = allocCancel, browserCtx, browserCancel
	b.logger.Info("browser launched")
	return browserCtx, nil
}

func (b *Browser) shutdownLocked() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.allocCancel, b.browserCtx, b.browserCancel = nil, nil, nil
}

// Close terminates the browser process. A later Print relaunches it.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownLocked()
	return nil
}

// Print loads job.HTML in a fresh tab, waits for network idle, and prints it.
// The tab is closed on every return path.
func (b *Browser) Print(ctx context.Context, job PrintJob) (PrintOutput, error) {
	browserCtx, err := b.ensure()
	if err != nil {
		return PrintOutput{}, err
	}

	file, err := os.CreateTemp("", "htmlpdf-*.html")
	if err != nil {
		return PrintOutput{}, apperr.Rasterization(err, "create temp document")
	}
	defer os.Remove(file.Name())
	if _, err := file.WriteString(job.HTML); err != nil {
		file.Close()
		return PrintOutput{}, apperr.Rasterization(err, "write temp document")
	}
	if err := file.Close(); err != nil {
		return PrintOutput{}, apperr.Rasterization(err, "close temp document")
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	idle := &idleWaiter{done: make(chan struct{})}
	chromedp.ListenTarget(tabCtx, idle.handle)

	var out PrintOutput
	actions := []chromedp.Action{
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(context.Context) error {
			idle.arm()
			return nil
		}),
		chromedp.Navigate("file://" + file.Name()),
		chromedp.ActionFunc(idle.wait),
	}
	if job.Screenshot {
		actions = append(actions, chromedp.CaptureScreenshot(&out.Screenshot))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := printParams(job).Do(ctx)
		if err != nil {
			return err
		}
		out.PDF = data
		return nil
	}))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return PrintOutput{}, apperr.Rasterization(ctx.Err(), "rasterization aborted")
		}
		if !b.IsConnected() {
			b.logger.Warn("browser lost during print", zap.Error(err))
		}
		return PrintOutput{}, apperr.Rasterization(err, "print page")
	}
	if len(out.PDF) == 0 {
		return PrintOutput{}, apperr.Rasterization(nil, "browser returned an empty PDF")
	}
	return out, nil
}

func printParams(job PrintJob) *page.PrintToPDFParams {
	s := job.Setup
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPreferCSSPageSize(false).
		WithPaperWidth(mmToInches(s.WidthMm)).
		WithPaperHeight(mmToInches(s.HeightMm)).
		WithMarginTop(mmToInches(s.Margins.Top)).
		WithMarginRight(mmToInches(s.Margins.Right)).
		WithMarginBottom(mmToInches(s.Margins.Bottom)).
		WithMarginLeft(mmToInches(s.Margins.Left)).
		WithDisplayHeaderFooter(s.DisplayHeaderFooter).
		WithHeaderTemplate(job.HeaderTemplate).
		WithFooterTemplate(job.FooterTemplate)
}

// idleWaiter resolves when the first navigation started after arm reaches networkIdle.
type idleWaiter struct {
	mu     sync.Mutex
	armed  bool
	loader cdp.LoaderID
	once   sync.Once
	done   chan struct{}
}

func (w *idleWaiter) arm() {
	w.mu.Lock()
	w.armed = true
	w.mu.Unlock()
}

func (w *idleWaiter) handle(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return
	}
	switch e.Name {
	case "init":
		if w.loader == "" {
			w.loader = e.LoaderID
		}
	case "networkIdle":
		if w.loader != "" && e.LoaderID == w.loader {
			w.once.Do(func() { close(w.done) })
		}
	}
}

func (w *idleWaiter) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Printer = (*Browser)(nil)
