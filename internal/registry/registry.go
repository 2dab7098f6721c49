// Package registry tracks which games are being watched and which have
// completed. It enforces one active watch per game id, keeps a bounded
// recent history of results, and runs the sweep that turns finished
// sessions into notifications and archived records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/browser"
	"github.com/elektro-code/CatanTournamentBot/internal/notify"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
	"github.com/elektro-code/CatanTournamentBot/internal/watch"
)

// ErrAlreadyActive means a watch for the id is already running.
var ErrAlreadyActive = errors.New("game is already being watched")

// ErrAlreadyCompleted means the id is in completed history; starting a
// duplicate watch for a finished game is refused rather than silently
// re-run.
var ErrAlreadyCompleted = errors.New("game is already in completed history")

// Completion is the archived record of a finished game.
type Completion struct {
	ID        string           `json:"id"`
	GameID    string           `json:"game_id"`
	Standings []score.Standing `json:"standings"`
	Channel   string           `json:"channel"`
	// Partial marks records without retrievable final scores (timeout,
	// fault, or missing end-of-game payload). The slot is kept so the
	// id still reads as terminal.
	Partial   bool      `json:"partial"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive is the optional durable mirror of completed games. A nil
// archive degrades to in-memory history only.
type Archive interface {
	Save(ctx context.Context, c Completion) error
	Get(ctx context.Context, gameID string) (Completion, bool, error)
}

// RuntimeFactory builds a fresh page runtime for one watch.
type RuntimeFactory func(ctx context.Context) (browser.Runtime, error)

// Options configures a Registry.
type Options struct {
	Watcher       *watch.Watcher
	NewRuntime    RuntimeFactory
	Sink          notify.Sink
	Archive       Archive
	Capacity      int
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Registry owns the active session set and the bounded completion
// history. Uniqueness of one watch per id comes from the single-writer
// check in StartWatch; no other locking crosses session boundaries.
type Registry struct {
	watcher    *watch.Watcher
	newRuntime RuntimeFactory
	sink       notify.Sink
	archive    Archive
	capacity   int
	sweepEvery time.Duration
	log        *zap.Logger

	mu        sync.Mutex
	active    map[string]*watch.Session
	completed map[string]Completion
	order     []string
	loopCtx   context.Context
}

// New builds a Registry.
func New(opts Options) *Registry {
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = notify.NewLogSink(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		watcher:    opts.Watcher,
		newRuntime: opts.NewRuntime,
		sink:       opts.Sink,
		archive:    opts.Archive,
		capacity:   opts.Capacity,
		sweepEvery: opts.SweepInterval,
		log:        opts.Logger.Named("registry"),
		active:     make(map[string]*watch.Session),
		completed:  make(map[string]Completion),
	}
}

// StartWatch begins watching a game. The id slot is reserved before the
// runtime launches so concurrent starts for the same id cannot race; on
// a launch failure the slot is released.
func (r *Registry) StartWatch(ctx context.Context, id, channel string) error {
	r.mu.Lock()
	if _, ok := r.active[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	if _, ok := r.completed[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyCompleted
	}
	session := watch.NewSession(id, channel)
	r.active[id] = session
	r.mu.Unlock()

	if r.archive != nil {
		if _, found, err := r.archive.Get(ctx, id); err != nil {
			r.log.Warn("archive lookup failed, treating as absent", zap.String("game", id), zap.Error(err))
		} else if found {
			r.release(id)
			return ErrAlreadyCompleted
		}
	}

	rt, err := r.newRuntime(ctx)
	if err != nil {
		r.release(id)
		return fmt.Errorf("start page runtime: %w", err)
	}

	go r.watcher.Run(r.watchContext(), session, rt)
	r.log.Info("watch started", zap.String("game", id), zap.String("channel", channel))
	return nil
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// watchContext is the lifetime for watch loops: the Run context when the
// sweep is running, the background context otherwise. Request contexts
// are never used, a watch must outlive the HTTP call that started it.
func (r *Registry) watchContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loopCtx != nil {
		return r.loopCtx
	}
	return context.Background()
}

// IsActive reports whether a watch is currently running for id.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// CurrentStatus derives the score table from the latest transition of an
// active session. Defined while the game is ongoing; false when the id
// is not active or no state has been captured yet.
func (r *Registry) CurrentStatus(id string) (score.Table, bool) {
	r.mu.Lock()
	session, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	latest, ok := session.Latest()
	if !ok {
		return nil, false
	}
	return score.FromRawState(latest.State), true
}

// LookupCompleted finds a completed record in memory, falling back to
// the durable archive for games evicted from the recent window.
func (r *Registry) LookupCompleted(ctx context.Context, id string) (Completion, bool) {
	r.mu.Lock()
	c, ok := r.completed[id]
	r.mu.Unlock()
	if ok {
		return c, true
	}
	if r.archive == nil {
		return Completion{}, false
	}
	c, found, err := r.archive.Get(ctx, id)
	if err != nil {
		r.log.Warn("archive lookup failed", zap.String("game", id), zap.Error(err))
		return Completion{}, false
	}
	return c, found
}

// RecordCompletion appends to the bounded history, evicting the oldest
// record once capacity is exceeded.
func (r *Registry) RecordCompletion(c Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.completed[c.GameID]; !exists {
		r.order = append(r.order, c.GameID)
	}
	r.completed[c.GameID] = c
	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.completed, oldest)
	}
}

// RecentCompletions returns completed records, most recent first.
func (r *Registry) RecentCompletions() []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Completion, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.completed[r.order[i]])
	}
	return out
}

// ActiveCount returns the number of running watches.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
