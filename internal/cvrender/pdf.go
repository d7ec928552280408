package cvrender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// ChromeOptions 为空时自动查找本机 Chromium，超时 60 秒。
type ChromeOptions struct {
	Bin     string
	Timeout time.Duration
}

// A4 尺寸，单位英寸。CSS @page 规则优先。
var a4Print = proto.PagePrintToPDF{
	PrintBackground:   true,
	PreferCSSPageSize: true,
	PaperWidth:        inches(8.27),
	PaperHeight:       inches(11.69),
	MarginTop:         inches(0),
	MarginBottom:      inches(0),
	MarginLeft:        inches(0),
	MarginRight:       inches(0),
}

func inches(v float64) *float64 { return &v }

// ChromeRenderer 每个任务启动一个独立的无头 Chromium，任务结束即退出。
type ChromeRenderer struct {
	logger *slog.Logger
	opts   ChromeOptions
}

func NewChromeRenderer(logger *slog.Logger, opts ChromeOptions) *ChromeRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Bin == "" {
		if found, ok := launcher.LookPath(); ok {
			opts.Bin = found
		}
	}
	return &ChromeRenderer{logger: logger, opts: opts}
}

func (r *ChromeRenderer) launch(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().Context(ctx).Headless(true).NoSandbox(true)
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).Timeout(r.opts.Timeout)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect chromium: %w", err)
	}
	return browser, func() {
		_ = browser.Close()
		l.Cleanup()
	}, nil
}

// RenderPDF 按打印媒体加载 CV HTML 并导出 PDF。
func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	started := time.Now()
	browser, shutdown, err := r.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer shutdown()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"emulate print media", func() error { return proto.EmulationSetEmulatedMedia{Media: "print"}.Call(page) }},
		{"set content", func() error { return page.SetDocumentContent(html) }},
		{"wait load", page.WaitLoad},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	stream, err := page.PDF(&a4Print)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	r.logger.Debug("cv pdf rendered",
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return data, nil
}
