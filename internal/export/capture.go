package export

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Capturer rasterises one HTML file to PNG bytes clipped to the canvas.
type Capturer interface {
	Capture(ctx context.Context, htmlPath string) ([]byte, error)
	Close() error
}

// CaptureOptions describe the capture frame.
type CaptureOptions struct {
	Width       int
	Height      int
	Scale       int
	SettleDelay time.Duration
	Timeout     time.Duration
	BrowserBin  string
	NoSandbox   bool
}

// strictCSS pins the document to the canvas whatever the slide asked for.
func strictCSS(w, h int) string {
	return fmt.Sprintf(`*,*::before,*::after{box-sizing:border-box !important}
html,body{width:%[1]dpx !important;height:%[2]dpx !important;min-width:%[1]dpx !important;max-width:%[1]dpx !important;min-height:%[2]dpx !important;max-height:%[2]dpx !important;margin:0 !important;padding:0 !important;overflow:hidden !important}
.slide{width:%[1]dpx !important;height:%[2]dpx !important;max-width:%[1]dpx !important;max-height:%[2]dpx !important;margin:0 !important;overflow:hidden !important;transform:none !important}
::-webkit-scrollbar{display:none !important}`, w, h)
}

// RodCapturer drives a headless Chromium through go-rod. The browser starts
// on first use and is reused for every slide of a run.
type RodCapturer struct {
	opts     CaptureOptions
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	log      *logrus.Entry
}

func NewRodCapturer(opts CaptureOptions) *RodCapturer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &RodCapturer{opts: opts, log: logrus.WithField("component", "capturer")}
}

func (c *RodCapturer) start() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}
	l := launcher.New().Headless(true).NoSandbox(c.opts.NoSandbox)
	if c.opts.BrowserBin != "" {
		l = l.Bin(c.opts.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	c.launcher = l
	c.browser = browser
	c.log.Debug("browser started")
	return browser, nil
}

// Capture loads htmlPath in a fresh page sized to the canvas and returns a
// PNG clipped to exactly that canvas.
func (c *RodCapturer) Capture(ctx context.Context, htmlPath string) ([]byte, error) {
	browser, err := c.start()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, err
	}
	fileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Timeout(c.opts.Timeout)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.opts.Width,
		Height:            c.opts.Height,
		DeviceScaleFactor: float64(c.opts.Scale),
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(fileURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if err := page.AddStyleTag("", strictCSS(c.opts.Width, c.opts.Height)); err != nil {
		return nil, fmt.Errorf("inject capture css: %w", err)
	}
	// charts and web fonts draw after load
	if err := page.WaitIdle(c.opts.SettleDelay + time.Second); err != nil {
		c.log.WithError(err).Debug("page did not go idle")
	}
	if c.opts.SettleDelay > 0 {
		select {
		case <-time.After(c.opts.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  float64(c.opts.Width),
			Height: float64(c.opts.Height),
			Scale:  1,
		},
		CaptureBeyondViewport: false,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return img, nil
}

func (c *RodCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Kill()
		c.launcher.Cleanup()
		c.launcher = nil
	}
	return err
}

var _ Capturer = (*RodCapturer)(nil)
