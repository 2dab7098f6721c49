package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/browser"
	"github.com/elektro-code/CatanTournamentBot/internal/config"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

// Read-only expressions evaluated against the patched page. The window
// globals exist only because the script rewriter exposed them.
const (
	exprCurrentPhase = `() => window.uiGameManager.gameController.currentState`
	exprGameState    = `() => window.uiGameManager.gameState`
	exprEndGameState = `() => window.endGameState`
)

var errHandleNeverAppeared = errors.New("game manager handle never appeared")

// Watcher runs watch loops. One Watcher serves all sessions; each Run
// call owns its session and runtime for the duration.
type Watcher struct {
	cfg config.WatchConfig
	log *zap.Logger
}

// NewWatcher builds a Watcher with the given loop timings.
func NewWatcher(cfg config.WatchConfig, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{cfg: cfg, log: log.Named("watch")}
}

// Run drives one session through the state machine:
//
//	Starting -> WaitingForHandle -> Polling -> Finished
//
// Every exit path, including panic and ctx cancellation, marks the
// session terminal and releases the runtime exactly once. Failures stop
// here; nothing propagates to other sessions or the sweep.
func (w *Watcher) Run(ctx context.Context, s *Session, rt browser.Runtime) {
	log := w.log.With(zap.String("game", s.ID()))

	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("runtime release", zap.Error(err))
		}
		reason, err := s.Finish()
		log.Info("watch finished", zap.String("reason", string(reason)), zap.Error(err))
	}()
	defer func() {
		if r := recover(); r != nil {
			s.finish(FinishError, fmt.Errorf("watch loop panic: %v", r))
			log.Error("watch loop panic", zap.Any("panic", r))
		}
	}()

	// Starting
	url := w.cfg.GameURL(s.ID())
	log.Info("watch starting", zap.String("url", url))
	if err := rt.Navigate(ctx, url); err != nil {
		s.finish(FinishError, err)
		return
	}

	// WaitingForHandle
	phase, ok := w.waitForHandle(ctx, s, rt, log)
	if !ok {
		return
	}

	// Capture the initial state and the player name mapping before
	// polling; end-of-game data only identifies players by color.
	initial, err := w.probeState(ctx, rt)
	if err != nil {
		s.finish(FinishError, fmt.Errorf("initial game state: %w", err))
		return
	}
	s.setNames(score.PlayerNames(initial))
	s.appendTransition(phase, initial)
	log.Info("polling", zap.String("phase", phase), zap.Int("players", len(s.Names())))

	// Polling
	w.poll(ctx, s, rt, phase, log)
}

// waitForHandle probes for the injected game manager once per retry
// interval, bounded by the attempt budget. Reports the initial phase.
func (w *Watcher) waitForHandle(ctx context.Context, s *Session, rt browser.Runtime, log *zap.Logger) (string, bool) {
	for attempt := 1; attempt <= w.cfg.MaxHandleAttempts(); attempt++ {
		v, err := rt.Eval(ctx, exprCurrentPhase)
		if err == nil {
			return v.String(), true
		}
		if !browser.IsNotReady(err) {
			s.finish(FinishError, fmt.Errorf("probe handle: %w", err))
			return "", false
		}
		log.Debug("handle not ready", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			s.finish(FinishCanceled, ctx.Err())
			return "", false
		case <-time.After(w.cfg.HandleRetry()):
		}
	}
	s.finish(FinishError, errHandleNeverAppeared)
	return "", false
}

// poll is the fixed-rate loop: game-over check, phase-change check,
// stall check, tick.
func (w *Watcher) poll(ctx context.Context, s *Session, rt browser.Runtime, phase string, log *zap.Logger) {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(FinishCanceled, ctx.Err())
			return
		case <-ticker.C:
		}

		state, err := w.probeState(ctx, rt)
		if err != nil {
			s.finish(FinishError, fmt.Errorf("probe game state: %w", err))
			return
		}

		if gameOver(state) {
			w.captureEndState(ctx, s, rt, log)
			s.finish(FinishSuccess, nil)
			return
		}

		v, err := rt.Eval(ctx, exprCurrentPhase)
		if err != nil {
			s.finish(FinishError, fmt.Errorf("probe phase: %w", err))
			return
		}
		if cur := v.String(); cur != phase {
			s.appendTransition(cur, state)
			phase = cur
			log.Debug("phase change", zap.String("phase", cur))
		}

		if stalled := time.Since(s.LastChange()); stalled > w.cfg.StallTimeout() {
			log.Warn("watch stalled", zap.Duration("since_change", stalled))
			s.finish(FinishTimeout, nil)
			return
		}
	}
}

// captureEndState waits the grace period, then reads the end-of-game
// global. The remote runtime fills it asynchronously after raising the
// game-over flag; reading too early risks a partial structure. An absent
// payload is a partial result, not a failure.
func (w *Watcher) captureEndState(ctx context.Context, s *Session, rt browser.Runtime, log *zap.Logger) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.EndGameGrace()):
	}

	v, err := rt.Eval(ctx, exprEndGameState)
	if err != nil {
		log.Warn("end-of-game state never populated", zap.Error(err))
		return
	}
	end, _ := v.Val().(map[string]any)
	if end == nil {
		log.Warn("end-of-game state empty")
		return
	}
	s.setEndState(end)
}

func (w *Watcher) probeState(ctx context.Context, rt browser.Runtime) (map[string]any, error) {
	v, err := rt.Eval(ctx, exprGameState)
	if err != nil {
		return nil, err
	}
	state, _ := v.Val().(map[string]any)
	return state, nil
}

func gameOver(state map[string]any) bool {
	switch v := state["isGameOver"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}
