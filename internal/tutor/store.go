package tutor

import (
	"context"
	"errors"
	"time"

	"github.com/park285/chess-tutor/internal/domain"
)

var (
	ErrSessionNotFound  = errors.New("tutor session not found")
	ErrInvalidMove      = errors.New("invalid chess move")
	ErrGameOver         = errors.New("game already finished")
	ErrUndoNotAvailable = errors.New("no moves available to undo")
	ErrClipNotFound     = errors.New("audio clip not found")
	ErrGameNotFound     = errors.New("tutor game not found")
	ErrDuplicateGame    = errors.New("tutor game already exists")
	ErrPlyOutOfRange    = errors.New("ply out of range")
)

// Session is the stored state of one tutoring game. The position is always
// rebuilt by replaying MovesUCI from the initial position.
type Session struct {
	ID              string    `json:"id"`
	MovesUCI        []string  `json:"moves_uci"`
	Resigned        bool      `json:"resigned,omitempty"`
	GameID          int64     `json:"game_id,omitempty"`
	Recommendations int       `json:"recommendations,omitempty"`
	FallbackReplies int       `json:"fallback_replies,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionStore keeps live sessions and synthesized audio clips.
// Load and LoadClip return (nil, nil) when the key does not exist.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	SaveClip(ctx context.Context, id string, audio []byte) error
	LoadClip(ctx context.Context, id string) ([]byte, error)
}

// GameRepository persists finished games.
type GameRepository interface {
	InsertGame(ctx context.Context, game *domain.TutorGame) (int64, error)
	GameBySession(ctx context.Context, sessionID string) (*domain.TutorGame, error)
	Game(ctx context.Context, id int64) (*domain.TutorGame, error)
	RecentGames(ctx context.Context, limit int) ([]*domain.TutorGame, error)
}
