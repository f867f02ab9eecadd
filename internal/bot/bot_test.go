package bot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/engine"
	"github.com/pongmatch/backend/internal/match"
)

func TestPredictY_BallMovingAwayTargetsCenter(t *testing.T) {
	s := engine.NewState() // serve travels toward side 1
	s.BallY = 83
	assert.Equal(t, 50.0, PredictY(s))
}

func TestPredictY_FlatBallArrivesAtItsHeight(t *testing.T) {
	s := engine.NewState()
	s.Direction = 1
	s.Angle = 0
	s.BallY = 30

	assert.InDelta(t, 30.0, PredictY(s), 1e-6)
}

func TestPredictY_ReflectsOffWalls(t *testing.T) {
	// A steep climb from mid-table must hit the top wall before the
	// right band, so the crossing height is below the starting height's
	// straight-line extrapolation and stays inside the table.
	s := engine.NewState()
	s.Direction = 1
	s.Angle = -60
	s.BallX = 50
	s.BallY = 20

	y := PredictY(s)
	assert.GreaterOrEqual(t, y, engine.TableMin)
	assert.LessOrEqual(t, y, engine.TableMax)

	// Without the wall it would extrapolate far off-table.
	vx, vy := engine.Velocity(1, s.Speed, s.Angle)
	straight := s.BallY + (engine.RightBounceX-s.BallX)/vx*vy
	assert.Less(t, straight, engine.TableMin, "sanity: straight-line leaves the table")
	assert.Greater(t, math.Abs(straight-y), 1.0)
}

func TestRun_AttachesAndStartsVsBotMatch(t *testing.T) {
	m := match.New(context.Background(), match.Config{
		Mode:         match.ModeVsBot,
		TickInterval: 2 * time.Millisecond,
	})
	t.Cleanup(m.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Run(ctx, m, nil)

	// The human side attaching is what completes readiness.
	out := make(chan match.Snapshot, 8)
	reply := make(chan error, 1)
	require.True(t, m.Send(ctx, match.Attach{Side: 1, Outbox: out, Reply: reply}))
	require.NoError(t, <-reply)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v := getView(t, m)
		if v.Started && v.NumClients == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bot never attached or match never started")
}

func TestMove_SteersPaddleTowardPrediction(t *testing.T) {
	// The paddle only moves while the simulation runs, so the key-hold
	// duration is computed against the real tick rate.
	m := match.New(context.Background(), match.Config{
		Mode:         match.ModeVsBot,
		TickInterval: match.DefaultTickInterval,
	})
	t.Cleanup(m.Stop)

	ctx := context.Background()
	out := make(chan match.Snapshot, 8)
	reply := make(chan error, 1)
	require.True(t, m.Send(ctx, match.Attach{
		Side:               1,
		Outbox:             out,
		ForceOpponentReady: true,
		Reply:              reply,
	}))
	require.NoError(t, <-reply)

	deadline := time.Now().Add(2 * time.Second)
	for !getView(t, m).Started {
		if time.Now().After(deadline) {
			t.Fatal("match never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Flat ball heading at the bot at height 20; the paddle starts
	// centered, so the bot must hold ArrowUp long enough to cover 30.
	s := engine.NewState()
	s.Direction = 1
	s.Angle = 0
	s.BallX = 60
	s.BallY = 20
	target := PredictY(s)
	require.InDelta(t, 20.0, target, 1e-6)

	move(ctx, m, s, zap.NewNop())

	var paddle float64
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		paddle = getView(t, m).State.P2
		if math.Abs(paddle-target) <= engine.PaddleStep {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Converged onto the predicted crossing point, within the jitter of
	// a couple of ticks either way.
	assert.InDelta(t, target, paddle, 3*engine.PaddleStep)
	assert.Less(t, paddle, 50.0, "paddle moved toward the prediction, not away")
}

func getView(t *testing.T, m *match.Match) match.View {
	t.Helper()
	reply := make(chan match.View, 1)
	require.True(t, m.Send(context.Background(), match.GetState{Reply: reply}))
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for view")
		return match.View{}
	}
}
