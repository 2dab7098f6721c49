package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/config"
	"github.com/elektro-code/CatanTournamentBot/internal/rewrite"
)

// Chrome is the rod-backed Runtime. Each instance owns one page with a
// hijack router that patches the vendor bundle in flight, which is what
// makes the game manager readable from Eval at all.
type Chrome struct {
	log      *zap.Logger
	cfg      config.BrowserConfig
	rewriter *rewrite.Rewriter

	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
}

// NewChrome launches (or attaches to) Chrome, opens a fresh page, and
// installs script interception. The returned runtime is ready to
// Navigate.
func NewChrome(ctx context.Context, cfg config.BrowserConfig, rw *rewrite.Rewriter, log *zap.Logger) (*Chrome, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chrome{log: log.Named("browser"), cfg: cfg, rewriter: rw}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		for _, rawFlag := range cfg.Flags {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		c.launch = l
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		c.killLauncher()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		c.killLauncher()
		return nil, fmt.Errorf("create page: %w", err)
	}
	c.page = page

	if err := c.installHijack(); err != nil {
		_ = page.Close()
		_ = b.Close()
		c.killLauncher()
		return nil, err
	}

	c.log.Info("page runtime ready", zap.Bool("headless", cfg.Headless))
	return c, nil
}

// installHijack routes vendor bundle responses through the rewriter.
func (c *Chrome) installHijack() error {
	router := c.page.HijackRequests()
	if err := router.Add("*colonist.io/dist/*", proto.NetworkResourceTypeScript, c.hijackScript); err != nil {
		return fmt.Errorf("add hijack route: %w", err)
	}
	go router.Run()
	c.router = router
	return nil
}

func (c *Chrome) hijackScript(h *rod.Hijack) {
	u := h.Request.URL().String()
	if c.rewriter == nil || !c.rewriter.MatchURL(u) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	if err := h.LoadResponse(http.DefaultClient, true); err != nil {
		c.log.Warn("load intercepted response failed", zap.String("url", u), zap.Error(err))
		return
	}

	payload := h.Response.Payload()
	if payload.ResponseCode != 0 && payload.ResponseCode != http.StatusOK {
		return
	}

	encoding := h.Response.Headers().Get("Content-Encoding")
	body, patched, err := c.rewriter.Apply([]byte(h.Response.Body()), encoding)
	if err != nil {
		c.log.Warn("script rewrite failed, forwarding original", zap.String("url", u), zap.Error(err))
		return
	}
	if !patched {
		return
	}

	h.Response.SetBody(body)
	stripEncodingHeaders(h.Response.Payload(), len(body))
	c.log.Info("vendor bundle intercepted", zap.String("url", u), zap.Int("bytes", len(body)))
}

// stripEncodingHeaders removes Content-Encoding (the patched body is
// plaintext) and pins Content-Length to the new size.
func stripEncodingHeaders(payload *proto.FetchFulfillRequest, size int) {
	kept := payload.ResponseHeaders[:0]
	for _, h := range payload.ResponseHeaders {
		switch strings.ToLower(h.Name) {
		case "content-encoding", "content-length":
			continue
		}
		kept = append(kept, h)
	}
	payload.ResponseHeaders = append(kept, &proto.FetchHeaderEntry{
		Name:  "Content-Length",
		Value: fmt.Sprintf("%d", size),
	})
}

// Navigate points the page at url. Returns once navigation is accepted;
// readiness is observed by probing for the injected handle.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Eval runs a read-only JS function expression in the document and
// returns its value. Undefined-handle exceptions come back as
// ErrNotReady; anything else is a runtime fault. Called at 20Hz by the
// watch loop, so it allocates nothing beyond the CDP round trip.
func (c *Chrome) Eval(ctx context.Context, expr string) (gson.JSON, error) {
	res, err := c.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           expr,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return gson.JSON{}, classifyEvalError(err)
	}
	return res.Value, nil
}

// Close releases the page, the browser connection, and any launched
// process. Idempotent; every watch exit path funnels through here.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		if c.router != nil {
			if err := c.router.Stop(); err != nil {
				c.log.Debug("hijack router stop", zap.Error(err))
			}
		}
		if c.page != nil {
			if err := c.page.Close(); err != nil {
				c.closeErr = err
			}
		}
		if c.browser != nil {
			if err := c.browser.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		c.killLauncher()
		c.log.Info("page runtime released")
	})
	return c.closeErr
}

func (c *Chrome) killLauncher() {
	if c.launch != nil {
		c.launch.Kill()
	}
}
