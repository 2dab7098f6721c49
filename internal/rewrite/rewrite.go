// Package rewrite patches the vendor's bundled game script as it is
// served, exposing the live game manager and the end-of-game payload on
// window so they can be read from outside the page's own script scope.
//
// The patch literals are exact substring matches against a specific
// minified bundle and break whenever the vendor ships new code. They are
// contract data, not logic: the set can be replaced from a YAML file and
// hot-reloaded without touching the watch state machine.
package rewrite

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Patch is one literal substring substitution. Max bounds the number of
// occurrences replaced; zero means one.
type Patch struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
	Max     int    `yaml:"max"`
}

// bundlePath matches the vendor's bundled script naming convention,
// e.g. https://colonist.io/dist/web.4f3a2b.js?v=1.
var bundlePath = regexp.MustCompile(`/web\.[0-9a-z]+\.js(\?.*)?$`)

// DefaultPatches exposes window.uiGameManager and window.endGameState
// inside the bundle. forceHideAds is flipped on as a side effect; the
// ad slots interfere with headless rendering.
func DefaultPatches() []Patch {
	return []Patch{
		{
			Find:    "this.forceHideAds=!1,this.uiGameManager=e,",
			Replace: "this.forceHideAds=1,window.uiGameManager=e,this.uiGameManager=e,",
		},
		{
			Find:    "this.endGameState=t,this.isReplayAvailable=i,",
			Replace: "this.endGameState=t,this.isReplayAvailable=i,window.endGameState=t,",
		},
	}
}

// Rewriter applies an ordered patch set to intercepted script bodies.
// The set is swappable at runtime; Apply never observes a partial swap.
type Rewriter struct {
	log *zap.Logger

	mu      sync.RWMutex
	patches []Patch
}

// New builds a Rewriter over the given patch set. A nil or empty set
// falls back to the built-in patches.
func New(log *zap.Logger, patches []Patch) *Rewriter {
	if log == nil {
		log = zap.NewNop()
	}
	if len(patches) == 0 {
		patches = DefaultPatches()
	}
	return &Rewriter{log: log.Named("rewrite"), patches: patches}
}

// MatchURL reports whether the URL names a vendor bundle this rewriter
// should intercept.
func (r *Rewriter) MatchURL(u string) bool {
	return strings.Contains(u, "colonist.io/dist/") && bundlePath.MatchString(u)
}

// SetPatches atomically replaces the patch set.
func (r *Rewriter) SetPatches(patches []Patch) {
	r.mu.Lock()
	r.patches = patches
	r.mu.Unlock()
	r.log.Info("patch set replaced", zap.Int("patches", len(patches)))
}

// Patches returns a copy of the current patch set.
func (r *Rewriter) Patches() []Patch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patch, len(r.patches))
	copy(out, r.patches)
	return out
}

// Apply decodes body per its declared content encoding and applies the
// patch set in order. When patched is true the returned body is decoded
// plaintext: the caller must strip the Content-Encoding header and
// recompute Content-Length. When no literal matched, the original input
// comes back untouched (encoding intact) and patched is false; a missing
// patch is not an error, the vendor may simply have shipped new code.
func (r *Rewriter) Apply(body []byte, encoding string) (out []byte, patched bool, err error) {
	text, err := decode(body, encoding)
	if err != nil {
		return body, false, fmt.Errorf("decode %q body: %w", encoding, err)
	}

	r.mu.RLock()
	patches := r.patches
	r.mu.RUnlock()

	applied := 0
	for _, p := range patches {
		max := p.Max
		if max <= 0 {
			max = 1
		}
		if !bytes.Contains(text, []byte(p.Find)) {
			r.log.Debug("patch literal not found", zap.String("find", p.Find))
			continue
		}
		text = bytes.Replace(text, []byte(p.Find), []byte(p.Replace), max)
		applied++
	}

	if applied == 0 {
		return body, false, nil
	}
	r.log.Info("script patched",
		zap.Int("applied", applied),
		zap.Int("original_bytes", len(body)),
		zap.Int("patched_bytes", len(text)))
	return text, true, nil
}

func decode(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		// Unknown scheme (e.g. br): leave the body alone so the page
		// still loads, no patch will match the compressed bytes.
		return body, nil
	}
}
