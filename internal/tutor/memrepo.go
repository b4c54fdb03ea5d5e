package tutor

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/chess-tutor/internal/domain"
)

// MemoryRepository is used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]*domain.TutorGame
	bySession map[string]*domain.TutorGame
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[int64]*domain.TutorGame),
		bySession: make(map[string]*domain.TutorGame),
	}
}

func (m *MemoryRepository) InsertGame(ctx context.Context, game *domain.TutorGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[game.SessionID]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID
	m.byID[stored.ID] = stored
	m.bySession[stored.SessionID] = stored
	return stored.ID, nil
}

func (m *MemoryRepository) GameBySession(ctx context.Context, sessionID string) (*domain.TutorGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.bySession[sessionID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return cloneGame(g), nil
}

func (m *MemoryRepository) Game(ctx context.Context, id int64) (*domain.TutorGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return cloneGame(g), nil
}

func (m *MemoryRepository) RecentGames(ctx context.Context, limit int) ([]*domain.TutorGame, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	out := make([]*domain.TutorGame, 0, len(m.byID))
	for _, g := range m.byID {
		out = append(out, cloneGame(g))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneGame(g *domain.TutorGame) *domain.TutorGame {
	c := *g
	c.MovesUCI = append([]string(nil), g.MovesUCI...)
	c.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &c
}
