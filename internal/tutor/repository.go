package tutor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-tutor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS tutor_games (
	id                BIGSERIAL PRIMARY KEY,
	session_id        TEXT NOT NULL UNIQUE,
	result            TEXT NOT NULL,
	result_method     TEXT NOT NULL,
	moves_uci         JSONB NOT NULL,
	moves_san         JSONB NOT NULL,
	pgn               TEXT NOT NULL,
	recommendations   INTEGER NOT NULL DEFAULT 0,
	fallback_replies  INTEGER NOT NULL DEFAULT 0,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT NOT NULL DEFAULT 0
)`

const selectColumns = `
	id,
	session_id,
	result,
	result_method,
	moves_uci,
	moves_san,
	pgn,
	recommendations,
	fallback_replies,
	started_at,
	ended_at,
	duration_ms`

type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq, pings, and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	repo := NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tutor_games: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) InsertGame(ctx context.Context, game *domain.TutorGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil tutor game payload")
	}
	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO tutor_games (
			session_id,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			recommendations,
			fallback_replies,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		game.SessionID,
		game.Result,
		game.ResultMethod,
		string(movesUCI),
		string(movesSAN),
		game.PGN,
		game.Recommendations,
		game.FallbackReplies,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert tutor game: %w", err)
	}
	return id.Int64, nil
}

func (r *PostgresRepository) GameBySession(ctx context.Context, sessionID string) (*domain.TutorGame, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM tutor_games WHERE session_id = $1`, sessionID)
	return scanGame(row)
}

func (r *PostgresRepository) Game(ctx context.Context, id int64) (*domain.TutorGame, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM tutor_games WHERE id = $1`, id)
	return scanGame(row)
}

func (r *PostgresRepository) RecentGames(ctx context.Context, limit int) ([]*domain.TutorGame, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT`+selectColumns+` FROM tutor_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select tutor games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.TutorGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tutor games: %w", err)
	}
	return games, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.TutorGame, error) {
	var (
		game       domain.TutorGame
		movesUCI   []byte
		movesSAN   []byte
		durationMS sql.NullInt64
	)
	err := row.Scan(
		&game.ID,
		&game.SessionID,
		&game.Result,
		&game.ResultMethod,
		&movesUCI,
		&movesSAN,
		&game.PGN,
		&game.Recommendations,
		&game.FallbackReplies,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tutor game: %w", err)
	}
	if len(movesUCI) > 0 {
		if err := json.Unmarshal(movesUCI, &game.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
	}
	if len(movesSAN) > 0 {
		if err := json.Unmarshal(movesSAN, &game.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	return &game, nil
}
