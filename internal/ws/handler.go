package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/match"
	"github.com/pongmatch/backend/internal/session"
	"github.com/pongmatch/backend/internal/types"
)

// The Gate owns the connection lifecycle: authorize the attach against
// the session's stored slots, pump snapshots out and key events in,
// and resolve teardown (forfeit, result posting, invite invalidation,
// session removal) when the connection ends.

// teardownGrace lets in-flight snapshot writes finish before the
// session is removed.
const teardownGrace = 200 * time.Millisecond

// ResultReporter persists a finished match and updates both players'
// economy. Failures are logged, never retried, and never block
// teardown.
type ResultReporter interface {
	ReportResult(ctx context.Context, sessionID string, score1, score2 int, player1ID, player2ID string, winnerSide int) error
}

// InviteInvalidator tells the notification layer a pending game invite
// is no longer valid.
type InviteInvalidator interface {
	InvalidateInvite(ctx context.Context, hostID, invitedID string) error
}

type Gate struct {
	registry *session.Registry
	results  ResultReporter
	invites  InviteInvalidator
	log      *zap.Logger
}

func NewGate(registry *session.Registry, results ResultReporter, invites InviteInvalidator, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{registry: registry, results: results, invites: invites, log: log}
}

// Handler upgrades GET /ws?session=...&player=... into a realtime
// match connection.
func (g *Gate) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		playerID := r.URL.Query().Get("player")
		if sessionID == "" || playerID == "" {
			http.Error(w, "missing session or player", http.StatusBadRequest)
			return
		}

		sess, ok := g.registry.Get(sessionID)
		if !ok {
			http.Error(w, "session no longer exists", http.StatusNotFound)
			return
		}

		// Authorization: the connector must be one of the stored slots.
		side := sess.Side(playerID)
		if side == 0 {
			g.log.Warn("attach rejected",
				zap.String("session_id", sessionID),
				zap.String("player_id", playerID))
			http.Error(w, "not a member of this session", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := g.log.With(
			zap.String("session_id", sessionID),
			zap.String("player_id", playerID),
			zap.Int("side", side))

		out := make(chan match.Snapshot, 16)
		attachReply := make(chan error, 1)
		attached := sess.Match.Send(r.Context(), match.Attach{
			Side:               side,
			Outbox:             out,
			ForceOpponentReady: !sess.GameType.Online(),
			Reply:              attachReply,
		})
		if !attached {
			return
		}
		if err := <-attachReply; err != nil {
			log.Warn("attach refused", zap.Error(err))
			return
		}
		log.Info("connection attached")

		// Writer: drain the snapshot outbox until the match closes it.
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for snap := range out {
				msg := types.ServerMessage{Type: "gameState", Tick: snap.Tick, State: &snap.State, Side: side}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// Outbox closed: terminal snapshot already delivered.
			conn.Close(websocket.StatusNormalClosure, "game over")
		}()

		g.readLoop(r.Context(), conn, sess, side)
		g.teardown(sess, side, log)
	}
}

func (g *Gate) readLoop(ctx context.Context, conn *websocket.Conn, sess session.Session, side int) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch cm.Type {
		case "keydown":
			sess.Match.Send(ctx, match.Key{Side: side, Name: cm.Key, Down: true})
		case "keyup":
			sess.Match.Send(ctx, match.Key{Side: side, Name: cm.Key, Down: false})
		case "exit_waiting":
			// Only meaningful before the match starts; the match actor
			// enforces that. Teardown runs on the way out.
			sess.Match.Send(ctx, match.Cancel{})
			return
		default:
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"error","error":"unknown type"}`))
		}
	}
}

// teardown resolves the disconnect with the match actor and performs
// the external effects it mandates. All collaborator failures are
// logged only; cleanup is unconditional.
func (g *Gate) teardown(sess session.Session, side int, log *zap.Logger) {
	// Slot 2 can be filled after this connection attached; resolve
	// against the registry's current view, not the attach-time copy.
	if fresh, ok := g.registry.Get(sess.ID); ok {
		sess = fresh
	}

	reply := make(chan match.Teardown, 1)
	if sess.Match.Send(context.Background(), match.Disconnect{Side: side, Reply: reply}) {
		select {
		case td := <-reply:
			g.resolve(sess, side, td, log)
		case <-sess.Match.Done():
		}
	}

	time.Sleep(teardownGrace)
	g.registry.Remove(sess.ID)
}

func (g *Gate) resolve(sess session.Session, side int, td match.Teardown, log *zap.Logger) {
	if td.Forfeited {
		log.Info("match forfeited by disconnect", zap.Int("win", td.State.Win))
	}

	if td.PostResult {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := g.results.ReportResult(ctx, sess.ID,
			td.State.Score1, td.State.Score2,
			sess.Players[0].ID, sess.Players[1].ID,
			td.State.Win)
		if err != nil {
			log.Error("result post failed", zap.Error(err))
		} else {
			log.Info("result posted",
				zap.Int("score1", td.State.Score1),
				zap.Int("score2", td.State.Score2),
				zap.Int("win", td.State.Win))
		}
	}

	// Invite bookkeeping, online sessions with a real second slot only.
	// A host leaving before start and a slot-2 mid-game drop retract
	// the record; a host mid-game drop and a slot-2 pre-start drop
	// keep it.
	if sess.GameType.Online() && !sess.Players[1].Placeholder() {
		invalidate := (side == 1 && !td.Started) || (side == 2 && td.Started)
		if invalidate {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.invites.InvalidateInvite(ctx, sess.Players[0].ID, sess.Players[1].ID); err != nil {
				log.Error("invite invalidation failed", zap.Error(err))
			}
		}
	}
}
