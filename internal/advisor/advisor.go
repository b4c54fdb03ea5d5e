// Package advisor asks an external UCI engine for the best move in a position
// and returns it only after checking it against the position's legal moves.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/chess/uci"
)

const DefaultMoveTime = 3000 * time.Millisecond

var coordinateMove = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Searcher runs one engine search on a fresh process.
type Searcher interface {
	Run(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
}

type Options struct {
	MoveTime time.Duration
	// SearchTimeout bounds the whole read loop. Zero derives it from MoveTime.
	SearchTimeout time.Duration
}

type Advice struct {
	Move       string
	Ponder     string
	EvalCP     int
	Candidates []uci.Candidate
	Duration   time.Duration
}

type Advisor struct {
	searcher Searcher
	opts     Options
	logger   *zap.Logger
}

func New(searcher Searcher, opts Options, logger *zap.Logger) (*Advisor, error) {
	if searcher == nil {
		return nil, fmt.Errorf("engine searcher is required")
	}
	if opts.MoveTime <= 0 {
		opts.MoveTime = DefaultMoveTime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{searcher: searcher, opts: opts, logger: logger}, nil
}

// BestMove returns the engine's move for pos in coordinate notation, or false
// when no usable move was obtained. Failures are logged, never returned.
func (a *Advisor) BestMove(ctx context.Context, pos *chess.Position) (string, bool) {
	advice, err := a.Advise(ctx, pos)
	if err != nil {
		level := zap.WarnLevel
		if KindOf(err) == KindNoLegalMoves {
			level = zap.DebugLevel
		}
		if ce := a.logger.Check(level, "engine best move unavailable"); ce != nil {
			ce.Write(zap.String("kind", KindOf(err).String()), zap.Error(err))
		}
		return "", false
	}
	return advice.Move, true
}

// Advise runs the full engine exchange for pos and reports why it failed.
func (a *Advisor) Advise(ctx context.Context, pos *chess.Position) (Advice, error) {
	if pos == nil {
		return Advice{}, &Error{Kind: KindNoLegalMoves, Err: errors.New("nil position")}
	}
	if len(pos.ValidMoves()) == 0 {
		return Advice{}, &Error{Kind: KindNoLegalMoves}
	}

	start := time.Now()
	resp, err := a.searcher.Run(ctx, uci.SearchRequest{
		FEN:     pos.String(),
		Limits:  uci.Limits{MoveTimeMillis: int(a.opts.MoveTime / time.Millisecond)},
		Timeout: a.opts.SearchTimeout,
	})
	if err != nil {
		return Advice{}, classify(err)
	}

	move, err := Validate(pos, resp.BestMove)
	if err != nil {
		return Advice{}, err
	}

	advice := Advice{
		Move:       move.String(),
		Ponder:     resp.Ponder,
		Candidates: resp.Candidates,
		Duration:   time.Since(start),
	}
	for _, c := range resp.Candidates {
		if c.Move == advice.Move {
			advice.EvalCP = c.EvalCP
			break
		}
	}
	a.logger.Debug("engine best move",
		zap.String("fen", pos.String()),
		zap.String("move", advice.Move),
		zap.String("ponder", advice.Ponder),
		zap.Duration("duration", advice.Duration),
	)
	return advice, nil
}

// Validate decodes token and returns the matching member of pos's legal moves.
// Null moves and resignation markers are reported as KindNoBestMove.
func Validate(pos *chess.Position, token string) (*chess.Move, error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	switch tok {
	case "", "0000", "(none)", "none", "resign":
		return nil, &Error{Kind: KindNoBestMove, Token: token}
	}
	if !coordinateMove.MatchString(tok) {
		return nil, &Error{Kind: KindMalformedMove, Token: token}
	}
	decoded, err := chess.UCINotation{}.Decode(pos, tok)
	if err != nil {
		return nil, &Error{Kind: KindIllegalMove, Token: token, Err: err}
	}
	for _, mv := range pos.ValidMoves() {
		if mv.S1() == decoded.S1() && mv.S2() == decoded.S2() && mv.Promo() == decoded.Promo() {
			legal := mv
			return &legal, nil
		}
	}
	return nil, &Error{Kind: KindIllegalMove, Token: token}
}

func classify(err error) error {
	kind := KindIO
	switch {
	case errors.Is(err, uci.ErrBinaryNotFound), errors.Is(err, uci.ErrStart):
		kind = KindSpawn
	case errors.Is(err, uci.ErrHandshake):
		kind = KindHandshake
	case errors.Is(err, uci.ErrStreamClosed):
		kind = KindNoBestMove
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	}
	return &Error{Kind: kind, Err: err}
}
