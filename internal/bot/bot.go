package bot

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/engine"
	"github.com/pongmatch/backend/internal/match"
)

// The bot emulates the second player for localvsbot sessions. It is an
// ordinary match client: it attaches to side 2, receives the same
// snapshots a human would, and writes the same virtual key events into
// the match inbox. The simulation cannot tell it apart from a person.

const (
	// Side is the slot the bot always plays.
	Side = 2

	// decisionInterval is deliberately much slower than the simulation
	// tick; the bot commits to a move and holds it.
	decisionInterval = time.Second

	// maxPredictSteps bounds the trajectory simulation.
	maxPredictSteps = 2000
)

// Run drives the bot until the match or ctx ends.
func Run(ctx context.Context, m *match.Match, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "bot"))

	out := make(chan match.Snapshot, 8)
	reply := make(chan error, 1)
	if !m.Send(ctx, match.Attach{Side: Side, Outbox: out, Reply: reply}) {
		return
	}
	if err := <-reply; err != nil {
		log.Warn("bot attach rejected", zap.Error(err))
		return
	}

	ticker := time.NewTicker(decisionInterval)
	defer ticker.Stop()

	var latest engine.State
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Done():
			return

		case snap, ok := <-out:
			if !ok {
				return
			}
			latest = snap.State

		case <-ticker.C:
			move(ctx, m, latest, log)
		}
	}
}

// move compares the predicted crossing point against the paddle and
// holds a virtual key for a duration proportional to the distance.
func move(ctx context.Context, m *match.Match, s engine.State, log *zap.Logger) {
	if s.Win != 0 {
		return
	}

	target := PredictY(s)
	diff := target - s.P2
	if math.Abs(diff) < engine.PaddleStep {
		return
	}

	key := match.KeyArrowDown
	if diff < 0 {
		key = match.KeyArrowUp
	}
	hold := time.Duration(math.Abs(diff)/engine.PaddleStep) * match.DefaultTickInterval
	if hold > decisionInterval {
		hold = decisionInterval
	}

	log.Debug("bot move",
		zap.Float64("target", target),
		zap.Float64("paddle", s.P2),
		zap.Duration("hold", hold))

	if !m.Send(ctx, match.Key{Side: Side, Name: key, Down: true}) {
		return
	}
	release := key
	time.AfterFunc(hold, func() {
		m.Send(ctx, match.Key{Side: Side, Name: release, Down: false})
	})
}

// PredictY forward-simulates the ball until it would cross the bot's
// goal line, reflecting off the walls exactly as the real simulation
// does, and returns the crossing height. When the ball travels away
// from the bot the target defaults to center.
func PredictY(s engine.State) float64 {
	if s.Direction != 1 {
		return 50
	}

	x, y, angle := s.BallX, s.BallY, s.Angle
	for i := 0; i < maxPredictSteps && x <= engine.RightBounceX; i++ {
		vx, vy := engine.Velocity(s.Direction, s.Speed, angle)
		x += vx
		y += vy
		if y <= engine.WallTop || y >= engine.WallBottom {
			angle = -angle
		}
	}
	return math.Max(engine.TableMin, math.Min(engine.TableMax, y))
}
