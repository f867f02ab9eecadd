package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pongmatch/backend/internal/engine"
)

const testTick = 2 * time.Millisecond

func newTestMatch(t *testing.T, mode Mode) *Match {
	t.Helper()
	m := New(context.Background(), Config{Mode: mode, TickInterval: testTick})
	t.Cleanup(m.Stop)
	return m
}

func attach(t *testing.T, m *Match, side int, force bool) chan Snapshot {
	t.Helper()
	out := make(chan Snapshot, 8)
	reply := make(chan error, 1)
	require.True(t, m.Send(context.Background(), Attach{
		Side:               side,
		Outbox:             out,
		ForceOpponentReady: force,
		Reply:              reply,
	}))
	require.NoError(t, recvErr(t, reply))
	return out
}

func view(t *testing.T, m *Match) View {
	t.Helper()
	reply := make(chan View, 1)
	require.True(t, m.Send(context.Background(), GetState{Reply: reply}))
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state view")
		return View{}
	}
}

func recvSnapshot(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "outbox closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func recvErr(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for attach reply")
		return nil
	}
}

// waitFor polls the actor's view until cond holds.
func waitFor(t *testing.T, m *Match, cond func(View) bool, what string) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v := view(t, m)
		if cond(v) {
			return v
		}
		time.Sleep(testTick)
	}
	t.Fatalf("timed out waiting for %s", what)
	return View{}
}

func requireClosed(t *testing.T, ch chan Snapshot) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("outbox never closed")
}

func TestAttach_SendsImmediateSnapshot(t *testing.T) {
	m := newTestMatch(t, ModeOnline)

	out := attach(t, m, 1, false)
	snap := recvSnapshot(t, out)
	assert.Equal(t, 0, snap.Tick)
	assert.Equal(t, 50.0, snap.State.BallX)

	// One connection is not enough; the simulation stays parked.
	v := view(t, m)
	assert.False(t, v.Started)
	assert.Equal(t, [2]bool{true, false}, v.Ready)
}

func TestAttach_DuplicateSideRejected(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	attach(t, m, 1, false)

	reply := make(chan error, 1)
	require.True(t, m.Send(context.Background(), Attach{
		Side:   1,
		Outbox: make(chan Snapshot, 1),
		Reply:  reply,
	}))
	assert.ErrorIs(t, recvErr(t, reply), ErrSideAttached)
}

func TestStarted_LatchesWhenBothSidesReady(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	out1 := attach(t, m, 1, false)
	attach(t, m, 2, false)

	v := waitFor(t, m, func(v View) bool { return v.Started && v.Tick > 0 }, "started")
	assert.True(t, v.Started)

	// Once running, ticks keep flowing to the outboxes.
	snap := recvSnapshot(t, out1)
	assert.GreaterOrEqual(t, snap.Tick, 0)
}

func TestForceOpponentReady_StartsSolo(t *testing.T) {
	m := newTestMatch(t, ModeLocal)
	attach(t, m, 1, true)

	waitFor(t, m, func(v View) bool { return v.Started }, "solo start")
}

func TestKey_MovesPaddle(t *testing.T) {
	m := newTestMatch(t, ModeLocal)
	attach(t, m, 1, true)
	waitFor(t, m, func(v View) bool { return v.Started }, "started")

	require.True(t, m.Send(context.Background(), Key{Side: 1, Name: KeyW, Down: true}))
	v := waitFor(t, m, func(v View) bool { return v.State.P1 < 50 }, "paddle to move")
	assert.Less(t, v.State.P1, 50.0)

	// Release stops it.
	require.True(t, m.Send(context.Background(), Key{Side: 1, Name: KeyW, Down: false}))
	stopped := waitFor(t, m, func(View) bool { return true }, "view")
	time.Sleep(10 * testTick)
	after := view(t, m)
	assert.InDelta(t, stopped.State.P1, after.State.P1, engine.PaddleStep+1e-9)
}

func TestOnlineKeys_OwnSideOnly(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	attach(t, m, 1, false)
	attach(t, m, 2, false)
	waitFor(t, m, func(v View) bool { return v.Started }, "started")

	// Side 2 holding ArrowUp moves only its own paddle.
	require.True(t, m.Send(context.Background(), Key{Side: 2, Name: KeyArrowUp, Down: true}))
	v := waitFor(t, m, func(v View) bool { return v.State.P2 < 50 }, "side 2 paddle")
	assert.Equal(t, 50.0, v.State.P1)
}

func TestCancel_BeforeStartClosesClients(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	out := attach(t, m, 1, false)

	require.True(t, m.Send(context.Background(), Cancel{}))
	requireClosed(t, out)

	v := view(t, m)
	assert.True(t, v.Cancelled)
	assert.False(t, v.Started)

	// The session is no longer joinable.
	reply := make(chan error, 1)
	require.True(t, m.Send(context.Background(), Attach{
		Side:   2,
		Outbox: make(chan Snapshot, 1),
		Reply:  reply,
	}))
	assert.ErrorIs(t, recvErr(t, reply), ErrMatchOver)
}

func TestDisconnect_BeforeStartIsNotForfeit(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	attach(t, m, 1, false)

	reply := make(chan Teardown, 1)
	require.True(t, m.Send(context.Background(), Disconnect{Side: 1, Reply: reply}))
	td := <-reply
	assert.False(t, td.Started)
	assert.False(t, td.Forfeited)
	assert.False(t, td.PostResult)
	assert.Zero(t, td.State.Win)
}

func TestDisconnect_MidGameForfeits(t *testing.T) {
	tests := []struct {
		name        string
		leavingSide int
		wantWin     int
		wantScores  [2]int
	}{
		{"side 1 leaves", 1, 2, [2]int{0, engine.ForfeitScore}},
		{"side 2 leaves", 2, 1, [2]int{engine.ForfeitScore, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatch(t, ModeOnline)
			attach(t, m, 1, false)
			attach(t, m, 2, false)
			waitFor(t, m, func(v View) bool { return v.Started }, "started")

			reply := make(chan Teardown, 1)
			require.True(t, m.Send(context.Background(), Disconnect{Side: tt.leavingSide, Reply: reply}))
			td := <-reply

			assert.True(t, td.Started)
			assert.True(t, td.Forfeited)
			assert.Equal(t, tt.wantWin, td.State.Win)
			assert.Equal(t, tt.wantScores[0], td.State.Score1)
			assert.Equal(t, tt.wantScores[1], td.State.Score2)
		})
	}
}

func TestDisconnect_ResultPostedExactlyOnce(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	attach(t, m, 1, false)
	attach(t, m, 2, false)
	waitFor(t, m, func(v View) bool { return v.Started }, "started")

	first := make(chan Teardown, 1)
	require.True(t, m.Send(context.Background(), Disconnect{Side: 1, Reply: first}))
	td1 := <-first
	assert.True(t, td1.PostResult, "first teardown posts the result")

	second := make(chan Teardown, 1)
	require.True(t, m.Send(context.Background(), Disconnect{Side: 2, Reply: second}))
	td2 := <-second
	assert.False(t, td2.PostResult, "second teardown must not post again")
	assert.Equal(t, td1.State.Win, td2.State.Win)
}

func TestDisconnect_LocalGameNeverPostsResult(t *testing.T) {
	m := newTestMatch(t, ModeLocal)
	attach(t, m, 1, true)
	waitFor(t, m, func(v View) bool { return v.Started }, "started")

	reply := make(chan Teardown, 1)
	require.True(t, m.Send(context.Background(), Disconnect{Side: 1, Reply: reply}))
	td := <-reply
	assert.True(t, td.Forfeited)
	assert.False(t, td.PostResult)
}

func TestStop_ClosesOutboxesAndSendFails(t *testing.T) {
	m := newTestMatch(t, ModeOnline)
	out := attach(t, m, 1, false)

	m.Stop()
	requireClosed(t, out)

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("match never reported done")
	}
	assert.False(t, m.Send(context.Background(), Cancel{}))
}

func TestSlowClient_NeverBlocksSimulation(t *testing.T) {
	m := newTestMatch(t, ModeOnline)

	// Tiny outbox that nobody drains.
	out := make(chan Snapshot, 1)
	reply := make(chan error, 1)
	require.True(t, m.Send(context.Background(), Attach{Side: 1, Outbox: out, Reply: reply}))
	require.NoError(t, recvErr(t, reply))
	attach(t, m, 2, false)

	v := waitFor(t, m, func(v View) bool { return v.Tick > 20 }, "ticks despite stalled client")
	assert.Greater(t, v.Tick, 20)

	// The stalled outbox holds the freshest frame it managed to get.
	snap := recvSnapshot(t, out)
	assert.GreaterOrEqual(t, snap.Tick, 0)
}
