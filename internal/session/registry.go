package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/bot"
	"github.com/pongmatch/backend/internal/match"
)

// The Registry is the sole authority for session existence: a single
// goroutine owning the id -> session map, reached through typed
// messages. Sessions are memory-resident only; a restart loses them.

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSlotTaken       = errors.New("second slot already filled")
	ErrNotOnline       = errors.New("not an online session")
)

type regMsg interface{ isRegMsg() }

type createMsg struct {
	id       string
	gameType GameType
	players  [2]Player
	reply    chan createReply
}

type getMsg struct {
	id    string
	reply chan getReply
}

type removeMsg struct {
	id string
}

type joinMsg struct {
	id     string
	player Player
	reply  chan createReply
}

type findOpenMsg struct {
	reply chan getReply
}

type shutdownMsg struct{}

func (createMsg) isRegMsg()   {}
func (getMsg) isRegMsg()      {}
func (removeMsg) isRegMsg()   {}
func (joinMsg) isRegMsg()     {}
func (findOpenMsg) isRegMsg() {}
func (shutdownMsg) isRegMsg() {}

type createReply struct {
	sess Session
	err  error
}

type getReply struct {
	sess Session
	ok   bool
}

type Registry struct {
	inbox    chan regMsg
	sessions map[string]*Session
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func NewRegistry(parent context.Context, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan regMsg, 64),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
	go r.loop()
	return r
}

// Create allocates a session and its simulation actor. The caller must
// supply a fresh unique id. localvsbot sessions get their bot attached
// to slot 2 immediately.
func (r *Registry) Create(id string, gt GameType, players [2]Player) (Session, error) {
	reply := make(chan createReply, 1)
	if !r.send(createMsg{id: id, gameType: gt, players: players, reply: reply}) {
		return Session{}, r.ctx.Err()
	}
	res := <-reply
	return res.sess, res.err
}

// Get returns a copy of the session's registry entry.
func (r *Registry) Get(id string) (Session, bool) {
	reply := make(chan getReply, 1)
	if !r.send(getMsg{id: id, reply: reply}) {
		return Session{}, false
	}
	res := <-reply
	return res.sess, res.ok
}

// Remove deletes a session and stops its simulation. Idempotent.
func (r *Registry) Remove(id string) {
	r.send(removeMsg{id: id})
}

// JoinSecondSlot fills an online session's empty slot 2, either for
// direct matchmaking or for accepting a private invite.
func (r *Registry) JoinSecondSlot(id string, p Player) (Session, error) {
	reply := make(chan createReply, 1)
	if !r.send(joinMsg{id: id, player: p, reply: reply}) {
		return Session{}, r.ctx.Err()
	}
	res := <-reply
	return res.sess, res.err
}

// FindOpenOnline returns any online session whose second slot is still
// empty, for direct matchmaking.
func (r *Registry) FindOpenOnline() (Session, bool) {
	reply := make(chan getReply, 1)
	if !r.send(findOpenMsg{reply: reply}) {
		return Session{}, false
	}
	res := <-reply
	return res.sess, res.ok
}

// Shutdown stops every live match and the registry itself.
func (r *Registry) Shutdown() {
	r.send(shutdownMsg{})
}

func (r *Registry) send(msg regMsg) bool {
	select {
	case r.inbox <- msg:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			for _, s := range r.sessions {
				s.Match.Stop()
			}
			clear(r.sessions)
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case createMsg:
				msg.reply <- r.create(msg)

			case getMsg:
				if s, ok := r.sessions[msg.id]; ok {
					msg.reply <- getReply{sess: *s, ok: true}
				} else {
					msg.reply <- getReply{}
				}

			case removeMsg:
				if s, ok := r.sessions[msg.id]; ok {
					s.Match.Stop()
					delete(r.sessions, msg.id)
					r.log.Info("session removed", zap.String("session_id", msg.id))
				}

			case joinMsg:
				msg.reply <- r.join(msg)

			case findOpenMsg:
				msg.reply <- r.findOpen()

			case shutdownMsg:
				r.cancel()
			}
		}
	}
}

func (r *Registry) create(msg createMsg) createReply {
	if _, ok := r.sessions[msg.id]; ok {
		return createReply{err: ErrSessionExists}
	}

	m := match.New(r.ctx, match.Config{
		Mode: msg.gameType.Mode(),
		Log:  r.log.With(zap.String("session_id", msg.id)),
	})
	s := &Session{
		ID:       msg.id,
		GameType: msg.gameType,
		Players:  msg.players,
		Match:    m,
	}
	r.sessions[msg.id] = s

	if msg.gameType == GameLocalVsBot {
		go bot.Run(r.ctx, m, r.log.With(zap.String("session_id", msg.id)))
	}

	r.log.Info("session created",
		zap.String("session_id", msg.id),
		zap.String("game_type", string(msg.gameType)),
		zap.String("player1", msg.players[0].ID))
	return createReply{sess: *s}
}

func (r *Registry) join(msg joinMsg) createReply {
	s, ok := r.sessions[msg.id]
	if !ok {
		return createReply{err: ErrSessionNotFound}
	}
	if !s.GameType.Online() {
		return createReply{err: ErrNotOnline}
	}
	if !s.Players[1].Placeholder() {
		return createReply{err: ErrSlotTaken}
	}
	s.Players[1] = msg.player
	r.log.Info("second slot filled",
		zap.String("session_id", s.ID),
		zap.String("player2", msg.player.ID))
	return createReply{sess: *s}
}

func (r *Registry) findOpen() getReply {
	for _, s := range r.sessions {
		if s.GameType.Online() && s.Players[1].Placeholder() {
			return getReply{sess: *s, ok: true}
		}
	}
	return getReply{}
}
