// Package browser drives the page runtime the watcher reads game state
// through. It wraps go-rod behind a four-operation contract so the watch
// loop never depends on a specific automation product.
package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
)

// ErrNotReady reports that the probed global handle does not exist yet.
// Expected while the page is still loading; callers retry with a bounded
// backoff instead of aborting.
var ErrNotReady = errors.New("remote handle not ready")

// Runtime is the page runtime contract the watch loop depends on. Eval
// executes a read-only JS function expression in the current document
// context and returns its JSON value. Close releases the underlying
// browser resources and must be safe to call more than once.
type Runtime interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, expr string) (gson.JSON, error)
	Close() error
}

// IsNotReady reports whether err means the remote handle has not
// appeared yet.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// classifyEvalError folds rod evaluation failures into the probe
// taxonomy: a page-side exception complaining about an undefined
// reference means the injected handle isn't there yet, anything else is
// a runtime fault.
func classifyEvalError(err error) error {
	var evalErr *rod.EvalError
	if !errors.As(err, &evalErr) {
		return err
	}
	msg := evalErr.Error()
	if strings.Contains(msg, "is not defined") || strings.Contains(msg, "of undefined") {
		return ErrNotReady
	}
	return err
}
