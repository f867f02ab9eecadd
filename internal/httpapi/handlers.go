package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pongmatch/backend/internal/session"
	"github.com/pongmatch/backend/internal/store"
)

// PlayerDirectory resolves player identities when seeding sessions.
type PlayerDirectory interface {
	LookupPlayer(ctx context.Context, id string) (store.PlayerProfile, error)
}

type API struct {
	registry *session.Registry
	players  PlayerDirectory
	log      *zap.Logger
}

func NewAPI(registry *session.Registry, players PlayerDirectory, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{registry: registry, players: players, log: log}
}

// GenerateSessionID allocates an opaque session id.
func GenerateSessionID() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	id := make([]byte, 16)
	for i := range id {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		id[i] = charset[num.Int64()]
	}
	return string(id), nil
}

type createMatchRequest struct {
	PlayerID   string `json:"player_id"`
	OpponentID string `json:"opponent_id,omitempty"`
	GameType   string `json:"game_type"`
}

type matchResponse struct {
	SessionID string `json:"session_id"`
}

type joinMatchRequest struct {
	PlayerID string `json:"player_id"`
}

// CreateMatch allocates a session and seeds slot 1 from the player
// directory. Online requests without an explicit opponent join any
// open online session instead of creating a new one.
func (a *API) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	gt, err := session.ParseGameType(req.GameType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller, err := a.lookup(r.Context(), req.PlayerID)
	if err != nil {
		a.playerError(w, err)
		return
	}

	if gt.Online() && req.OpponentID == "" {
		if open, ok := a.registry.FindOpenOnline(); ok {
			if joined, err := a.registry.JoinSecondSlot(open.ID, caller); err == nil {
				writeJSON(w, http.StatusOK, matchResponse{SessionID: joined.ID})
				return
			}
			// Slot raced away; fall through and host a new session.
		}
	}

	id, err := GenerateSessionID()
	if err != nil {
		http.Error(w, "failed to allocate session id", http.StatusInternalServerError)
		return
	}

	players := [2]session.Player{caller, session.PlaceholderPlayer()}
	sess, err := a.registry.Create(id, gt, players)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	a.log.Info("match created",
		zap.String("session_id", sess.ID),
		zap.String("game_type", string(gt)),
		zap.String("host", caller.ID))
	writeJSON(w, http.StatusCreated, matchResponse{SessionID: sess.ID})
}

// JoinMatch fills slot 2 of a specific session (invite accept path).
func (a *API) JoinMatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req joinMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	player, err := a.lookup(r.Context(), req.PlayerID)
	if err != nil {
		a.playerError(w, err)
		return
	}

	sess, err := a.registry.JoinSecondSlot(sessionID, player)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "session no longer exists", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, matchResponse{SessionID: sess.ID})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) lookup(ctx context.Context, playerID string) (session.Player, error) {
	if playerID == "" {
		return session.Player{}, store.ErrPlayerNotFound
	}
	profile, err := a.players.LookupPlayer(ctx, playerID)
	if err != nil {
		return session.Player{}, err
	}
	return session.Player{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		AvatarRef:   profile.AvatarRef,
	}, nil
}

func (a *API) playerError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrPlayerNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.log.Error("player lookup failed", zap.Error(err))
	http.Error(w, "player lookup failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
