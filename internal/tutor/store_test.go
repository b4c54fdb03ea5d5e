package tutor

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-tutor/internal/domain"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour, time.Minute), mr
}

func TestRedisStoreSessionRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	missing, err := store.Load(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Load missing = %+v, %v", missing, err)
	}

	sess := &Session{ID: "s1", MovesUCI: []string{"e2e4", "e7e5"}, Recommendations: 1, StartedAt: time.Now().UTC()}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("tutor:session:s1"); ttl != time.Hour {
		t.Fatalf("session ttl = %v", ttl)
	}
	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != "s1" || len(got.MovesUCI) != 2 || got.Recommendations != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Load(ctx, "s1"); got != nil {
		t.Fatalf("session survived delete")
	}
}

func TestRedisStoreClipExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	if err := store.SaveClip(ctx, "c1", []byte("audio")); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}
	got, err := store.LoadClip(ctx, "c1")
	if err != nil || string(got) != "audio" {
		t.Fatalf("LoadClip = %q, %v", got, err)
	}
	mr.FastForward(2 * time.Minute)
	if got, _ := store.LoadClip(ctx, "c1"); got != nil {
		t.Fatalf("clip should have expired")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute, time.Second)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, &Session{ID: "s1", MovesUCI: []string{"d2d4"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = store.SaveClip(ctx, "c1", []byte("x"))
	got, _ := store.Load(ctx, "s1")
	got.MovesUCI[0] = "mutated"
	again, _ := store.Load(ctx, "s1")
	if again.MovesUCI[0] != "d2d4" {
		t.Fatalf("store shares state with callers")
	}

	now = now.Add(2 * time.Second)
	if clip, _ := store.LoadClip(ctx, "c1"); clip != nil {
		t.Fatalf("clip should have expired")
	}
	if sess, _ := store.Load(ctx, "s1"); sess == nil {
		t.Fatalf("session expired too early")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:pw@localhost:6380/2")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if _, err := ParseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := ParseRedisURL("redis://localhost/x"); err == nil {
		t.Fatalf("expected db error")
	}
}

func TestMemoryRepositoryDuplicateAndOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now()
	id1, err := repo.InsertGame(ctx, &domain.TutorGame{SessionID: "a", EndedAt: base})
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if _, err := repo.InsertGame(ctx, &domain.TutorGame{SessionID: "a"}); err != ErrDuplicateGame {
		t.Fatalf("expected ErrDuplicateGame, got %v", err)
	}
	id2, _ := repo.InsertGame(ctx, &domain.TutorGame{SessionID: "b", EndedAt: base.Add(time.Minute)})

	recent, err := repo.RecentGames(ctx, 10)
	if err != nil || len(recent) != 2 || recent[0].ID != id2 || recent[1].ID != id1 {
		t.Fatalf("RecentGames = %+v, %v", recent, err)
	}
	if _, err := repo.Game(ctx, 99); err != ErrGameNotFound {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	byS, err := repo.GameBySession(ctx, "b")
	if err != nil || byS.ID != id2 {
		t.Fatalf("GameBySession = %+v, %v", byS, err)
	}
}
