package match

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/engine"
)

// A Match is the single owner of one session's mutable state. Both
// players' connections (and the bot, when there is one) talk to it
// only through the inbox, so the "one mutator at a time" invariant
// holds by construction.

// DefaultTickInterval is the authoritative simulation rate.
const DefaultTickInterval = 20 * time.Millisecond

// Mode selects how key events map onto the two paddles.
type Mode int

const (
	// ModeLocal drives both paddles from one machine: w/s for side 1,
	// arrow keys for side 2.
	ModeLocal Mode = iota
	// ModeVsBot gives every human key to side 1; the bot owns side 2.
	ModeVsBot
	// ModeOnline gives every key to the sending connection's own side.
	ModeOnline
)

// Key names understood by the simulation. Anything else is ignored.
const (
	KeyW         = "w"
	KeyS         = "s"
	KeyArrowUp   = "ArrowUp"
	KeyArrowDown = "ArrowDown"
)

var ErrSideAttached = errors.New("side already attached")
var ErrMatchOver = errors.New("match already over")

type Msg interface{ isMatchMsg() }

// Attach registers a side's snapshot outbox and flips its readiness.
type Attach struct {
	Side               int
	Outbox             chan Snapshot
	ForceOpponentReady bool // non-online games have no second connection
	Reply              chan error
}

// Key toggles a held key for a side.
type Key struct {
	Side int
	Name string
	Down bool
}

// Cancel aborts a session that has not started yet (exit_waiting).
type Cancel struct{}

// Disconnect resolves a side's teardown: forfeit if the match was
// running, and an exactly-once grant to post the result.
type Disconnect struct {
	Side  int
	Reply chan Teardown
}

// GetState reflects internal state without data races (test hook).
type GetState struct {
	Reply chan View
}

func (Attach) isMatchMsg()     {}
func (Key) isMatchMsg()        {}
func (Cancel) isMatchMsg()     {}
func (Disconnect) isMatchMsg() {}
func (GetState) isMatchMsg()   {}

// Snapshot is what clients receive after every tick.
type Snapshot struct {
	Tick  int
	State engine.State
}

type View struct {
	Tick       int
	Started    bool
	Cancelled  bool
	Ready      [2]bool
	NumClients int
	State      engine.State
}

// Teardown tells the disconnecting side's handler what to do with the
// external collaborators.
type Teardown struct {
	Started    bool
	Forfeited  bool
	PostResult bool
	State      engine.State
}

type Config struct {
	Mode         Mode
	TickInterval time.Duration // defaults to DefaultTickInterval
	Log          *zap.Logger
}

type Match struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	mode     Mode
	interval time.Duration

	state   engine.State
	inputs  engine.Inputs
	tick    int
	ready   [2]bool
	started bool

	cancelled    bool
	resultPosted bool

	clients map[int]chan Snapshot // side -> outbox
}

func New(parent context.Context, cfg Config) *Match {
	ctx, cancel := context.WithCancel(parent)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	m := &Match{
		inbox:    make(chan Msg, 64),
		ctx:      ctx,
		cancel:   cancel,
		log:      cfg.Log,
		mode:     cfg.Mode,
		interval: cfg.TickInterval,
		state:    engine.NewState(),
		clients:  make(map[int]chan Snapshot),
	}
	go m.loop()
	return m
}

// Send delivers a message unless the match or the caller is done.
// Callers must treat a false return as "match gone".
func (m *Match) Send(ctx context.Context, msg Msg) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Done is closed once the match goroutine is shutting down.
func (m *Match) Done() <-chan struct{} { return m.ctx.Done() }

// Stop tears the match down; attached outboxes are closed.
func (m *Match) Stop() { m.cancel() }

func (m *Match) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.closeClients()
			return

		case <-ticker.C:
			m.advance()

		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

// advance runs one tick: latch the started flag, step the physics,
// broadcast, and on a terminal score emit once more and cut clients.
func (m *Match) advance() {
	if m.cancelled || m.state.Win != 0 {
		return
	}
	if !m.started && m.ready[0] && m.ready[1] {
		m.started = true
		m.log.Info("match started")
	}
	if !m.started {
		return
	}

	var events []engine.Event
	m.state, events = engine.Step(m.state, m.inputs)
	m.tick++
	m.broadcast()

	for _, e := range events {
		switch e.Type {
		case engine.EvtGoal:
			m.log.Debug("point scored",
				zap.Int("side", e.Side),
				zap.Int("score1", m.state.Score1),
				zap.Int("score2", m.state.Score2))
		case engine.EvtWin:
			m.log.Info("match won", zap.Int("side", e.Side))
			m.closeClients()
		}
	}
}

func (m *Match) handle(msg Msg) {
	switch msg := msg.(type) {
	case Attach:
		msg.Reply <- m.attach(msg)

	case Key:
		m.applyKey(msg)

	case Cancel:
		// Only meaningful before the match starts.
		if !m.started && m.state.Win == 0 {
			m.cancelled = true
			m.closeClients()
		}

	case Disconnect:
		msg.Reply <- m.disconnect(msg.Side)

	case GetState:
		msg.Reply <- View{
			Tick:       m.tick,
			Started:    m.started,
			Cancelled:  m.cancelled,
			Ready:      m.ready,
			NumClients: len(m.clients),
			State:      m.state,
		}
	}
}

func (m *Match) attach(msg Attach) error {
	if m.cancelled || m.state.Win != 0 {
		return ErrMatchOver
	}
	if _, ok := m.clients[msg.Side]; ok {
		return ErrSideAttached
	}
	m.clients[msg.Side] = msg.Outbox
	m.ready[msg.Side-1] = true
	if msg.ForceOpponentReady {
		m.ready[0], m.ready[1] = true, true
	}

	// Send the current snapshot immediately so the client can render
	// the table while waiting for the opponent.
	m.sendTo(msg.Outbox, Snapshot{Tick: m.tick, State: m.state})
	return nil
}

func (m *Match) disconnect(side int) Teardown {
	td := Teardown{Started: m.started}

	if m.started && !m.cancelled && m.state.Win == 0 {
		m.state = engine.Forfeit(m.state, side)
		td.Forfeited = true
		m.log.Info("forfeit on disconnect",
			zap.Int("leaving_side", side),
			zap.Int("win", m.state.Win))
		// Let the remaining side see the terminal score.
		m.broadcast()
		m.closeClients()
	}

	if m.mode == ModeOnline && m.state.Win != 0 && !m.resultPosted {
		m.resultPosted = true
		td.PostResult = true
	}

	if ch, ok := m.clients[side]; ok {
		close(ch)
		delete(m.clients, side)
	}
	td.State = m.state
	return td
}

// applyKey routes a key event into the per-side input buffers. The
// mapping depends on the game mode; bot and human writes go through
// the same path.
func (m *Match) applyKey(k Key) {
	switch m.mode {
	case ModeLocal:
		// One keyboard, two paddles.
		switch k.Name {
		case KeyW:
			m.inputs.P1Up = k.Down
		case KeyS:
			m.inputs.P1Down = k.Down
		case KeyArrowUp:
			m.inputs.P2Up = k.Down
		case KeyArrowDown:
			m.inputs.P2Down = k.Down
		}

	case ModeVsBot:
		if k.Side == 2 {
			switch k.Name {
			case KeyW, KeyArrowUp:
				m.inputs.P2Up = k.Down
			case KeyS, KeyArrowDown:
				m.inputs.P2Down = k.Down
			}
			return
		}
		switch k.Name {
		case KeyW, KeyArrowUp:
			m.inputs.P1Up = k.Down
		case KeyS, KeyArrowDown:
			m.inputs.P1Down = k.Down
		}

	case ModeOnline:
		up, down := k.Name == KeyW || k.Name == KeyArrowUp,
			k.Name == KeyS || k.Name == KeyArrowDown
		switch {
		case k.Side == 1 && up:
			m.inputs.P1Up = k.Down
		case k.Side == 1 && down:
			m.inputs.P1Down = k.Down
		case k.Side == 2 && up:
			m.inputs.P2Up = k.Down
		case k.Side == 2 && down:
			m.inputs.P2Down = k.Down
		}
	}
}

func (m *Match) broadcast() {
	snap := Snapshot{Tick: m.tick, State: m.state}
	for _, ch := range m.clients {
		m.sendTo(ch, snap)
	}
}

// sendTo never blocks the simulation: a full outbox loses its oldest
// frame, and if it is still full the new frame is dropped instead.
func (m *Match) sendTo(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (m *Match) closeClients() {
	for side, ch := range m.clients {
		close(ch)
		delete(m.clients, side)
	}
}
