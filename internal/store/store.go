package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The store backs the collaborators the core consumes: the player
// directory, result persistence with the economy update, and invite
// invalidation. Live sessions never touch it; only match creation and
// teardown do.

// WinnerCurrencyBonus is credited to the winner of an online match.
// The loser receives nothing.
const WinnerCurrencyBonus = 50

var ErrPlayerNotFound = errors.New("player not found")

// PlayerProfile is the per-user row the match backend reads identity
// from and settles results into.
type PlayerProfile struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	AvatarRef   string
	GamesPlayed int
	Wins        int
	Losses      int
	Currency    int64
}

// MatchRecord is one finished match.
type MatchRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	Player1ID  string
	Player2ID  string
	Score1     int
	Score2     int
	WinnerSide int
	CreatedAt  time.Time
}

// GameInvite is a pending private-match invitation owned by the
// notification layer; the gate only ever deletes them.
type GameInvite struct {
	ID        uint   `gorm:"primaryKey"`
	HostID    string `gorm:"index"`
	InvitedID string `gorm:"index"`
	CreatedAt time.Time
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&PlayerProfile{}, &MatchRecord{}, &GameInvite{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// LookupPlayer resolves a player's identity for session seeding.
func (s *Store) LookupPlayer(ctx context.Context, id string) (PlayerProfile, error) {
	var p PlayerProfile
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlayerProfile{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	if err != nil {
		return PlayerProfile{}, err
	}
	return p, nil
}

// ReportResult persists a finished match and settles both players'
// counters in one transaction: games played for both, a win plus the
// currency bonus for the winner, a loss for the loser.
func (s *Store) ReportResult(ctx context.Context, sessionID string, score1, score2 int, player1ID, player2ID string, winnerSide int) error {
	winnerID, loserID := player1ID, player2ID
	if winnerSide == 2 {
		winnerID, loserID = player2ID, player1ID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := MatchRecord{
			SessionID:  sessionID,
			Player1ID:  player1ID,
			Player2ID:  player2ID,
			Score1:     score1,
			Score2:     score2,
			WinnerSide: winnerSide,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		err := tx.Model(&PlayerProfile{}).Where("id = ?", winnerID).
			Updates(map[string]any{
				"games_played": gorm.Expr("games_played + 1"),
				"wins":         gorm.Expr("wins + 1"),
				"currency":     gorm.Expr("currency + ?", WinnerCurrencyBonus),
			}).Error
		if err != nil {
			return fmt.Errorf("settle winner: %w", err)
		}

		err = tx.Model(&PlayerProfile{}).Where("id = ?", loserID).
			Updates(map[string]any{
				"games_played": gorm.Expr("games_played + 1"),
				"losses":       gorm.Expr("losses + 1"),
			}).Error
		if err != nil {
			return fmt.Errorf("settle loser: %w", err)
		}
		return nil
	})
}

// InvalidateInvite removes a pending invite. Deleting an invite that
// is already gone is not an error.
func (s *Store) InvalidateInvite(ctx context.Context, hostID, invitedID string) error {
	return s.db.WithContext(ctx).
		Where("host_id = ? AND invited_id = ?", hostID, invitedID).
		Delete(&GameInvite{}).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
