package session

import (
	"errors"

	"github.com/pongmatch/backend/internal/match"
)

// GameType labels how a session is played. tournament-local is
// mechanically identical to local; the bracket logic lives client-side.
type GameType string

const (
	GameLocal           GameType = "local"
	GameLocalVsBot      GameType = "localvsbot"
	GameOnline          GameType = "online"
	GameTournamentLocal GameType = "tournament-local"
)

var ErrUnknownGameType = errors.New("unknown game type")

func ParseGameType(s string) (GameType, error) {
	switch GameType(s) {
	case GameLocal, GameLocalVsBot, GameOnline, GameTournamentLocal:
		return GameType(s), nil
	default:
		return "", ErrUnknownGameType
	}
}

// Online reports whether both slots are real remote connections.
func (g GameType) Online() bool { return g == GameOnline }

// Mode maps the game type onto the simulation's key routing.
func (g GameType) Mode() match.Mode {
	switch g {
	case GameLocalVsBot:
		return match.ModeVsBot
	case GameOnline:
		return match.ModeOnline
	default:
		return match.ModeLocal
	}
}

// Player is one slot's identity. Non-online games fill slot 2 with a
// placeholder that has no id.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

// Placeholder reports whether the slot holds no real identity.
func (p Player) Placeholder() bool { return p.ID == "" }

// PlaceholderPlayer fills slot 2 when no second human is expected.
func PlaceholderPlayer() Player {
	return Player{DisplayName: "Player 2"}
}

// Session is one match's registry entry. Values handed out by the
// registry are copies; the Match pointer is the live part.
type Session struct {
	ID       string
	GameType GameType
	Players  [2]Player
	Match    *match.Match
}

// Side resolves which slot a player id belongs to, or 0 if neither.
func (s Session) Side(playerID string) int {
	if playerID != "" {
		if s.Players[0].ID == playerID {
			return 1
		}
		if s.Players[1].ID == playerID {
			return 2
		}
	}
	return 0
}
