package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 4 * time.Second
	defaultSearchGrace      = 2 * time.Second
	processWaitDelay        = time.Second
	lineBufferSize          = 64
)

var (
	ErrStart        = errors.New("uci: start engine")
	ErrHandshake    = errors.New("uci: handshake")
	ErrStreamClosed = errors.New("uci: engine output closed")
	ErrSessionDone  = errors.New("uci: session closed")
)

type Options struct {
	Args             []string
	Threads          int
	HashMB           int
	HandshakeTimeout time.Duration
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type Candidate struct {
	Move      string
	EvalCP    int
	Mate      int
	Depth     int
	Principal []string
}

// Session is one engine process with its stdin writer and a line reader over stdout.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	logger *zap.Logger

	readErr error

	mu        sync.Mutex
	search    sync.Mutex
	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, binaryPath, opt.Args...)
	cmd.WaitDelay = processWaitDelay
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrStart, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrStart, err)
	}
	cmd.Stderr = zap.NewStdLog(logger.Named("engine.stderr")).Writer()

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("%w: %w", ErrStart, err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, lineBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.readLoop(bufio.NewReader(stdoutPipe))

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
	// Timeout overrides the wall-clock bound derived from Limits.
	Timeout time.Duration
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Ponder     string
}

// Search sends the position and go commands and reads until a bestmove line,
// the end of the output stream, or the search deadline.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	deadline := req.Timeout
	if deadline <= 0 {
		deadline = computeSearchTimeout(req.Limits)
	}
	searchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	candidates := make(map[int]Candidate)
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Debug("uci read failed",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			best, ponder, _ := ParseBestMove(line)
			return SearchResponse{
				Candidates: collapseCandidates(candidates),
				BestMove:   best,
				Ponder:     ponder,
			}, nil
		}
	}
}

// ParseBestMove extracts the move and optional ponder move from a bestmove line.
// ok is false when the line is not a bestmove line or carries no move field.
func ParseBestMove(line string) (best, ponder string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", "", false
	}
	best = fields[1]
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ponder = fields[i+1]
			break
		}
	}
	return best, ponder, true
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	if opt.HashMB < 0 {
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if opt.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must be >= 0: %s", opt.HandshakeTimeout)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis)*time.Millisecond + defaultSearchGrace
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv = 1
		cand    Candidate
		pvIdx   = -1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					cand.Depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				kind := parts[i+1]
				val := parts[i+2]
				switch kind {
				case "cp":
					if v, err := strconv.Atoi(val); err == nil {
						cand.EvalCP = v
					}
				case "mate":
					if v, err := strconv.Atoi(val); err == nil {
						const mateValue = 30000
						cand.Mate = v
						if v >= 0 {
							cand.EvalCP = mateValue
						} else {
							cand.EvalCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]
	cand.Move = principal[0]
	cand.Principal = append([]string(nil), principal...)
	return multipv, cand, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

// Close kills the engine process and reaps it. No quit command is sent.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.mu.Unlock()

		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if s.cmd != nil {
			err := s.cmd.Wait()
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				s.closeErr = err
			}
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}

// Pid reports the engine process id, or 0 when the process never started.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	timeout := opt.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("%w: send uci: %w", ErrHandshake, err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("%w: wait uciok: %w", ErrHandshake, err)
	}

	if err := s.applyOptions(opt); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("%w: send isready: %w", ErrHandshake, err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("%w: wait readyok: %w", ErrHandshake, err)
	}
	return nil
}

func (s *Session) applyOptions(opt Options) error {
	var cmds []string
	if opt.Threads > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Threads value %d\n", opt.Threads))
	}
	if opt.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB))
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return ErrSessionDone
	default:
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if line == token || strings.HasPrefix(line, token+" ") {
			return nil
		}
	}
}

func (s *Session) readLoop(r *bufio.Reader) {
	defer close(s.lines)
	for {
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			select {
			case s.lines <- trimmed:
			case <-s.done:
				s.readErr = ErrSessionDone
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil && !errors.Is(s.readErr, io.EOF) {
				return "", fmt.Errorf("%w: %w", ErrStreamClosed, s.readErr)
			}
			return "", ErrStreamClosed
		}
		return line, nil
	}
}
