// Package tutor runs tutoring games: the user plays White, each move is
// preceded by an engine recommendation with an explanation, and the engine
// answers as Black.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/advisor"
	"github.com/park285/chess-tutor/internal/chess/openingbook"
	"github.com/park285/chess-tutor/internal/coach"
	"github.com/park285/chess-tutor/internal/domain"
	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/render"
	"github.com/park285/chess-tutor/pkg/tutordto"
)

const (
	defaultSpeechTimeout  = 30 * time.Second
	defaultMoveTimeout    = 60 * time.Second
	defaultExplainTimeout = 20 * time.Second
	maxHistoryLimit       = 50
)

type Advisor interface {
	Advise(ctx context.Context, pos *chess.Position) (advisor.Advice, error)
}

type Explainer interface {
	Explain(ctx context.Context, req coach.Request) (string, error)
	Fallback() string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Publisher interface {
	Publish(sessionID string, ev tutordto.Event)
}

type Config struct {
	SpeechTimeout time.Duration
	// MoveTimeout bounds a whole Play once the user's move is accepted:
	// recommendation, reply search and persistence.
	MoveTimeout time.Duration
	// ExplainTimeout bounds one explanation request; on expiry the fixed
	// fallback text is used.
	ExplainTimeout time.Duration
	HistoryLimit   int
}

// Deps groups the collaborators. Explainer, Synthesizer and Publisher are
// optional; a nil Advisor means every reply is a random legal move.
type Deps struct {
	Advisor     Advisor
	Explainer   Explainer
	Synthesizer Synthesizer
	Publisher   Publisher
	Store       SessionStore
	Repo        GameRepository
	Catalog     *msgcat.Catalog
}

type PlayOptions struct {
	Speak bool
}

type Service struct {
	deps   Deps
	cfg    Config
	locks  *keyedMutex
	logger *zap.Logger

	// pick returns a uniform index in [0,n).
	pick func(n int) int
	now  func() time.Time

	bg sync.WaitGroup
}

func NewService(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Repo == nil {
		deps.Repo = NewMemoryRepository()
	}
	if deps.Catalog == nil {
		cat, err := msgcat.New("")
		if err != nil {
			return nil, err
		}
		deps.Catalog = cat
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = defaultSpeechTimeout
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = defaultMoveTimeout
	}
	if cfg.ExplainTimeout <= 0 {
		cfg.ExplainTimeout = defaultExplainTimeout
	}
	if cfg.ExplainTimeout > cfg.MoveTimeout {
		cfg.ExplainTimeout = cfg.MoveTimeout
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = maxHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		logger: logger,
		pick:   rand.IntN,
		now:    time.Now,
	}, nil
}

// Wait blocks until background speech synthesis has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) Start(ctx context.Context) (*tutordto.State, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		MovesUCI:  []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("tutor_session_start", zap.String("session_id", sess.ID))
	return s.stateFromGame(sess, chess.NewGame()), nil
}

func (s *Service) State(ctx context.Context, id string) (*tutordto.State, error) {
	sess, game, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.stateFromGame(sess, game), nil
}

// Play applies the user's move and the engine's reply. Only a move that cannot
// be parsed or applied fails; advisory, explanation and speech problems are
// reported in the summary instead. Once the move parses, the caller going away
// no longer affects the outcome; the rest runs under MoveTimeout.
func (s *Service) Play(ctx context.Context, id, input string, opts PlayOptions) (*tutordto.MoveSummary, error) {
	moveText := strings.TrimSpace(input)
	if moveText == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidMove)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sess, game, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if finished(sess, game) {
		return nil, ErrGameOver
	}

	san := chess.AlgebraicNotation{}
	before := game.Position()
	move, err := parseUserMove(before, moveText)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MoveTimeout)
	defer cancel()

	summary := &tutordto.MoveSummary{}
	if rec := s.recommend(ctx, sess, before, opts); rec != nil {
		summary.Recommendation = rec
		summary.Messages = append(summary.Messages, s.text("tutor.recommended", map[string]string{"Move": rec.MoveSAN}, "Recommended move: "+rec.MoveSAN))
	}

	summary.PlayerSAN = san.Encode(before, move)
	summary.PlayerUCI = move.String()
	if err := game.Move(move, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}
	sess.MovesUCI = append(sess.MovesUCI, summary.PlayerUCI)
	summary.Messages = append(summary.Messages, s.text("tutor.applied", map[string]string{"Move": summary.PlayerSAN}, "Your move applied: "+summary.PlayerSAN))

	if game.Outcome() == chess.NoOutcome {
		s.reply(ctx, sess, game, summary)
	}

	sess.UpdatedAt = s.now()
	if finished(sess, game) {
		s.persistFinished(ctx, sess, game)
		summary.Messages = append(summary.Messages, s.gameOverText(sess, game))
	}
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	summary.State = s.stateFromGame(sess, game)
	summary.Finished = summary.State.Finished
	s.publish(sess.ID, tutordto.Event{Type: tutordto.EventMoveApplied, Summary: summary})
	if summary.Finished {
		s.publish(sess.ID, tutordto.Event{Type: tutordto.EventGameOver, State: summary.State, Text: s.gameOverText(sess, game)})
	}
	return summary, nil
}

func parseUserMove(pos *chess.Position, text string) (*chess.Move, error) {
	move, err := chess.AlgebraicNotation{}.Decode(pos, text)
	if err == nil {
		return move, nil
	}
	move, uciErr := chess.UCINotation{}.Decode(pos, strings.ToLower(text))
	if uciErr != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMove, text)
	}
	// UCI decoding accepts any pseudo move; keep only legal ones.
	legal, err := advisor.Validate(pos, move.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMove, text)
	}
	return legal, nil
}

// recommend asks the engine for the best move in pos and explains it.
func (s *Service) recommend(ctx context.Context, sess *Session, pos *chess.Position, opts PlayOptions) *tutordto.Recommendation {
	if s.deps.Advisor == nil {
		return nil
	}
	advice, err := s.deps.Advisor.Advise(ctx, pos)
	if err != nil {
		s.logger.Info("tutor_recommendation_unavailable",
			zap.String("session_id", sess.ID),
			zap.String("kind", advisor.KindOf(err).String()),
			zap.Error(err),
		)
		return nil
	}
	move, err := advisor.Validate(pos, advice.Move)
	if err != nil {
		return nil
	}
	rec := &tutordto.Recommendation{
		MoveUCI: move.String(),
		MoveSAN: chess.AlgebraicNotation{}.Encode(pos, move),
		EvalCP:  advice.EvalCP,
	}
	sess.Recommendations++

	if s.deps.Explainer == nil {
		return rec
	}
	explainCtx, cancel := context.WithTimeout(ctx, s.cfg.ExplainTimeout)
	text, err := s.deps.Explainer.Explain(explainCtx, coach.Request{
		FEN:     pos.String(),
		MoveSAN: rec.MoveSAN,
		Side:    colorName(pos.Turn()),
	})
	cancel()
	if err != nil {
		s.logger.Warn("tutor_explanation_failed", zap.String("session_id", sess.ID), zap.Error(err))
		rec.Explanation = s.deps.Explainer.Fallback()
		return rec
	}
	rec.Explanation = text
	if opts.Speak && s.deps.Synthesizer != nil {
		rec.ClipID = s.speak(ctx, sess.ID, text)
	}
	return rec
}

// speak synthesizes text in the background and returns the clip id the audio
// will be stored under. Failures are logged only.
func (s *Service) speak(ctx context.Context, sessionID, text string) string {
	clipID := uuid.NewString()
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(bgCtx, s.cfg.SpeechTimeout)
		defer cancel()
		audio, err := s.deps.Synthesizer.Synthesize(ctx, text)
		if err != nil {
			s.logger.Warn("tutor_speech_failed", zap.String("clip_id", clipID), zap.Error(err))
			return
		}
		if err := s.deps.Store.SaveClip(ctx, clipID, audio); err != nil {
			s.logger.Warn("tutor_clip_store_failed", zap.String("clip_id", clipID), zap.Error(err))
			return
		}
		s.publish(sessionID, tutordto.Event{Type: tutordto.EventClipReady, ClipID: clipID, Text: text})
	}()
	return clipID
}

// reply plays Black's move: the engine's choice, or a uniformly random legal
// move when the engine has none.
func (s *Service) reply(ctx context.Context, sess *Session, game *chess.Game, summary *tutordto.MoveSummary) {
	pos := game.Position()
	var move *chess.Move
	if s.deps.Advisor != nil {
		advice, err := s.deps.Advisor.Advise(ctx, pos)
		if err == nil {
			move, err = advisor.Validate(pos, advice.Move)
		}
		if err != nil {
			s.logger.Info("tutor_reply_unavailable",
				zap.String("session_id", sess.ID),
				zap.String("kind", advisor.KindOf(err).String()),
				zap.Error(err),
			)
		}
	}

	if move == nil {
		legal := pos.ValidMoves()
		if len(legal) == 0 {
			summary.Messages = append(summary.Messages, s.text("tutor.no_reply", nil, "No legal move found for Black."))
			return
		}
		summary.Messages = append(summary.Messages, s.text("tutor.reply_fallback", nil, "No best move found for Black. Playing a random legal move as fallback."))
		pickedMove := legal[s.pick(len(legal))]
		move = &pickedMove
		summary.ReplyFallback = true
		sess.FallbackReplies++
	}

	sanText := chess.AlgebraicNotation{}.Encode(pos, move)
	if err := game.Move(move, nil); err != nil {
		s.logger.Error("tutor_reply_apply_failed", zap.String("session_id", sess.ID), zap.String("move", move.String()), zap.Error(err))
		return
	}
	summary.ReplySAN = sanText
	summary.ReplyUCI = move.String()
	sess.MovesUCI = append(sess.MovesUCI, summary.ReplyUCI)
	data := map[string]string{"Move": sanText}
	if summary.ReplyFallback {
		summary.Messages = append(summary.Messages, s.text("tutor.reply_fallback_played", data, "Black played (fallback): "+sanText))
	} else {
		summary.Messages = append(summary.Messages, s.text("tutor.reply", data, "Black played: "+sanText))
	}
}

func (s *Service) Reset(ctx context.Context, id string) (*tutordto.State, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	*sess = Session{ID: sess.ID, MovesUCI: []string{}, StartedAt: now, UpdatedAt: now}
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	state := s.stateFromGame(sess, chess.NewGame())
	s.publish(sess.ID, tutordto.Event{Type: tutordto.EventStateReset, State: state})
	return state, nil
}

func (s *Service) Resign(ctx context.Context, id string) (*tutordto.State, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, game, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if finished(sess, game) {
		return nil, ErrGameOver
	}
	sess.Resigned = true
	sess.UpdatedAt = s.now()
	game.Resign(chess.White)
	s.persistFinished(ctx, sess, game)
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	state := s.stateFromGame(sess, game)
	s.publish(sess.ID, tutordto.Event{Type: tutordto.EventGameOver, State: state, Text: s.gameOverText(sess, game)})
	return state, nil
}

// Undo removes the last user move together with the reply to it.
func (s *Service) Undo(ctx context.Context, id string) (*tutordto.State, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, game, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if finished(sess, game) {
		return nil, ErrGameOver
	}
	n := len(sess.MovesUCI)
	if n == 0 {
		return nil, ErrUndoNotAvailable
	}
	// User moves sit at even plies; drop back to before the last one.
	trimmed := n - 1
	if n%2 == 0 {
		trimmed = n - 2
	}
	sess.MovesUCI = append([]string(nil), sess.MovesUCI[:trimmed]...)
	sess.UpdatedAt = s.now()
	game, err = replay(sess)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	state := s.stateFromGame(sess, game)
	s.publish(sess.ID, tutordto.Event{Type: tutordto.EventStateReset, State: state})
	return state, nil
}

func (s *Service) Clip(ctx context.Context, clipID string) ([]byte, error) {
	if _, err := uuid.Parse(clipID); err != nil {
		return nil, ErrClipNotFound
	}
	audio, err := s.deps.Store.LoadClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if audio == nil {
		return nil, ErrClipNotFound
	}
	return audio, nil
}

// Board renders the position after ply half-moves with the move that led to
// it highlighted. A negative ply means the current position.
func (s *Service) Board(ctx context.Context, id string, ply int, asPNG bool) ([]byte, error) {
	_, game, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	moves := game.Moves()
	if ply < 0 {
		ply = len(moves)
	}
	if ply > len(moves) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPlyOutOfRange, ply, len(moves))
	}
	opts := render.Options{Coordinates: true}
	if ply > 0 {
		opts.Highlight = render.HighlightMove(moves[ply-1])
	}
	board := game.Positions()[ply].Board()
	if asPNG {
		return render.PNG(ctx, board, opts)
	}
	return render.SVG(board, opts)
}

func (s *Service) History(ctx context.Context, limit int) ([]tutordto.GameRecord, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	games, err := s.deps.Repo.RecentGames(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]tutordto.GameRecord, 0, len(games))
	for _, g := range games {
		out = append(out, gameRecord(g))
	}
	return out, nil
}

func (s *Service) Game(ctx context.Context, id int64) (*tutordto.GameRecord, error) {
	g, err := s.deps.Repo.Game(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := gameRecord(g)
	return &rec, nil
}

func (s *Service) load(ctx context.Context, id string) (*Session, *chess.Game, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return nil, nil, ErrSessionNotFound
	}
	sess, err := s.deps.Store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	game, err := replay(sess)
	if err != nil {
		return nil, nil, err
	}
	return sess, game, nil
}

func replay(sess *Session) (*chess.Game, error) {
	game := chess.NewGame()
	notation := chess.UCINotation{}
	for _, mv := range sess.MovesUCI {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	if sess.Resigned && game.Outcome() == chess.NoOutcome {
		game.Resign(chess.White)
	}
	return game, nil
}

func finished(sess *Session, game *chess.Game) bool {
	return sess.Resigned || game.Outcome() != chess.NoOutcome
}

func (s *Service) persistFinished(ctx context.Context, sess *Session, game *chess.Game) {
	if sess.GameID != 0 {
		return
	}
	now := s.now()
	record := &domain.TutorGame{
		SessionID:       sess.ID,
		Result:          string(game.Outcome()),
		ResultMethod:    strings.ToLower(game.Method().String()),
		MovesUCI:        append([]string(nil), sess.MovesUCI...),
		MovesSAN:        sanMoves(game),
		PGN:             game.String(),
		Recommendations: sess.Recommendations,
		FallbackReplies: sess.FallbackReplies,
		StartedAt:       sess.StartedAt,
		EndedAt:         now,
		Duration:        now.Sub(sess.StartedAt),
	}
	id, err := s.deps.Repo.InsertGame(ctx, record)
	if errors.Is(err, ErrDuplicateGame) {
		if existing, fetchErr := s.deps.Repo.GameBySession(ctx, sess.ID); fetchErr == nil {
			id, err = existing.ID, nil
		}
	}
	if err != nil {
		s.logger.Warn("tutor_game_persist_failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	sess.GameID = id
	s.logger.Info("tutor_game_finished",
		zap.String("session_id", sess.ID),
		zap.Int64("game_id", id),
		zap.String("result", record.Result),
		zap.String("method", record.ResultMethod),
		zap.Int("plies", len(record.MovesUCI)),
	)
}

func (s *Service) stateFromGame(sess *Session, game *chess.Game) *tutordto.State {
	pos := game.Position()
	state := &tutordto.State{
		ID:        sess.ID,
		FEN:       pos.String(),
		MovesUCI:  append([]string{}, sess.MovesUCI...),
		MovesSAN:  sanMoves(game),
		Turn:      strings.ToLower(colorName(pos.Turn())),
		Outcome:   string(game.Outcome()),
		Finished:  finished(sess, game),
		GameID:    sess.GameID,
		StartedAt: sess.StartedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if state.Finished {
		state.Method = strings.ToLower(game.Method().String())
		state.LegalMoves = []string{}
	} else {
		valid := pos.ValidMoves()
		state.LegalMoves = make([]string, 0, len(valid))
		for _, mv := range valid {
			state.LegalMoves = append(state.LegalMoves, mv.String())
		}
	}
	if n := len(sess.MovesUCI); n > 0 {
		state.LastMove = sess.MovesUCI[n-1]
	}
	if o, ok := openingbook.Identify(game.Moves()); ok {
		state.ECO, state.Opening = o.Code, o.Title
	}
	return state
}

func sanMoves(game *chess.Game) []string {
	positions := game.Positions()
	moves := game.Moves()
	out := make([]string, 0, len(moves))
	notation := chess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			out = append(out, notation.Encode(positions[i], mv))
		}
	}
	return out
}

func gameRecord(g *domain.TutorGame) tutordto.GameRecord {
	return tutordto.GameRecord{
		ID:              g.ID,
		SessionID:       g.SessionID,
		Result:          g.Result,
		ResultMethod:    g.ResultMethod,
		MovesSAN:        append([]string(nil), g.MovesSAN...),
		PGN:             g.PGN,
		Recommendations: g.Recommendations,
		FallbackReplies: g.FallbackReplies,
		StartedAt:       g.StartedAt,
		EndedAt:         g.EndedAt,
		DurationMS:      g.Duration.Milliseconds(),
	}
}

func (s *Service) gameOverText(sess *Session, game *chess.Game) string {
	data := map[string]string{
		"Result": string(game.Outcome()),
		"Method": strings.ToLower(game.Method().String()),
	}
	return s.text("tutor.game_over", data, fmt.Sprintf("Game over: %s (%s)", data["Result"], data["Method"]))
}

func (s *Service) text(key string, data any, fallback string) string {
	return s.deps.Catalog.Text(key, data, fallback)
}

func (s *Service) publish(sessionID string, ev tutordto.Event) {
	if s.deps.Publisher == nil {
		return
	}
	ev.SessionID = sessionID
	s.deps.Publisher.Publish(sessionID, ev)
}

func colorName(c chess.Color) string {
	if c == chess.Black {
		return "Black"
	}
	return "White"
}
