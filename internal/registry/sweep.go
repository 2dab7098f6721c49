package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/notify"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
	"github.com/elektro-code/CatanTournamentBot/internal/watch"
)

// Run drives the completion sweep until ctx is canceled. The coarse
// interval is a latency/cost tradeoff, not a correctness boundary: each
// ended session is removed from the active set under the lock before it
// is finalized, so completion handling happens exactly once.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	r.loopCtx = ctx
	r.mu.Unlock()

	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain: loops share this ctx and are winding down;
			// finalize whatever has already gone terminal so shutdown
			// does not drop completed games.
			drain, cancel := context.WithTimeout(context.Background(), time.Second)
			r.Sweep(drain)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep scans active sessions and finalizes every one whose loop has
// gone terminal. Exported so tests and shutdown can force a pass.
func (r *Registry) Sweep(ctx context.Context) {
	var ended []*watch.Session
	r.mu.Lock()
	for id, session := range r.active {
		if !session.Active() {
			ended = append(ended, session)
			delete(r.active, id)
		}
	}
	r.mu.Unlock()

	for _, session := range ended {
		r.finalize(ctx, session)
	}
}

// finalize builds the completion record for one ended session, notifies
// the origin channel, and archives the result. A session without usable
// final scores still archives a partial record so the id reads as
// terminal instead of losing the slot.
func (r *Registry) finalize(ctx context.Context, session *watch.Session) {
	id := session.ID()
	reason, watchErr := session.Finish()
	log := r.log.With(zap.String("game", id), zap.String("reason", string(reason)))

	var (
		standings []score.Standing
		partial   bool
		message   string
	)
	switch reason {
	case watch.FinishSuccess:
		end := session.EndState()
		if end == nil {
			partial = true
			message = notify.FormatPartial(id)
			log.Warn("game ended without end-of-game payload")
		} else {
			standings = score.FromEndGameState(end, session.Names())
			message = notify.FormatFinal(id, standings)
		}
	case watch.FinishTimeout:
		partial = true
		message = notify.FormatPartial(id)
		log.Warn("watch abandoned after stall timeout")
	default:
		partial = true
		message = notify.FormatPartial(id)
		log.Error("watch ended abnormally", zap.Error(watchErr))
	}

	completion := Completion{
		ID:        uuid.NewString(),
		GameID:    id,
		Standings: standings,
		Channel:   session.Channel(),
		Partial:   partial,
		Reason:    string(reason),
		CreatedAt: time.Now(),
	}
	r.RecordCompletion(completion)

	if r.archive != nil {
		if err := r.archive.Save(ctx, completion); err != nil {
			log.Warn("archive save failed, history is in-memory only", zap.Error(err))
		}
	}

	if err := r.sink.Send(ctx, session.Channel(), message); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
	log.Info("game archived", zap.Bool("partial", partial), zap.Int("players", len(standings)))
}
