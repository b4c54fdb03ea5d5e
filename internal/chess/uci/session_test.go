package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	helperEnv     = "UCI_FAKE_ENGINE"
	helperModeEnv = "UCI_FAKE_ENGINE_MODE"
)

// TestHelperProcess is not a real test. It is re-executed as a fake engine
// by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	mode := os.Getenv(helperModeEnv)
	in := bufio.NewScanner(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	say := func(lines ...string) {
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
		out.Flush()
	}
	for in.Scan() {
		cmd := strings.TrimSpace(in.Text())
		switch {
		case cmd == "uci":
			if mode == "nouciok" {
				say("id name fake")
				continue
			}
			say("id name fake", "id author test", "uciok")
		case cmd == "isready":
			say("readyok")
		case strings.HasPrefix(cmd, "go"):
			switch mode {
			case "silent":
				os.Exit(0)
			case "hang":
				time.Sleep(time.Minute)
			case "null":
				say("bestmove 0000")
			default:
				say(
					"info depth 10 multipv 1 score cp 35 pv e2e4 e7e5",
					"info depth 10 multipv 2 score cp 20 pv d2d4 d7d5",
					"bestmove e2e4 ponder e7e5",
				)
			}
		case cmd == "quit":
			os.Exit(0)
		}
	}
	os.Exit(0)
}

func fakeEngine(t *testing.T, mode string) LauncherConfig {
	t.Helper()
	t.Setenv(helperEnv, "1")
	t.Setenv(helperModeEnv, mode)
	return LauncherConfig{
		BinaryPath: os.Args[0],
		MaxProcs:   2,
		Options: Options{
			Args:             []string{"-test.run=^TestHelperProcess$"},
			HandshakeTimeout: 5 * time.Second,
		},
	}
}

func TestRunReturnsBestMoveAndCandidates(t *testing.T) {
	l, err := NewLauncher(fakeEngine(t, "normal"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	resp, err := l.Run(context.Background(), SearchRequest{
		FEN:    "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Limits: Limits{MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.BestMove != "e2e4" || resp.Ponder != "e7e5" {
		t.Fatalf("unexpected best move: %+v", resp)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[0].Move != "e2e4" || resp.Candidates[0].EvalCP != 35 {
		t.Fatalf("unexpected candidates: %+v", resp.Candidates)
	}
	if got := l.InFlight(); got != 0 {
		t.Fatalf("expected slot released after run, in flight=%d", got)
	}
}

func TestRunStreamClosedWithoutBestMove(t *testing.T) {
	l, err := NewLauncher(fakeEngine(t, "silent"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	_, err = l.Run(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 100}})
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestRunTimesOutOnHungEngine(t *testing.T) {
	l, err := NewLauncher(fakeEngine(t, "hang"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	start := time.Now()
	_, err = l.Run(context.Background(), SearchRequest{
		Limits:  Limits{MoveTimeMillis: 50},
		Timeout: 300 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("hung engine was not killed promptly: %s", elapsed)
	}
	if got := l.InFlight(); got != 0 {
		t.Fatalf("expected slot released, in flight=%d", got)
	}
}

func TestHandshakeFailsWithoutUciok(t *testing.T) {
	cfg := fakeEngine(t, "nouciok")
	cfg.Options.HandshakeTimeout = 200 * time.Millisecond
	l, err := NewLauncher(cfg)
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	_, err = l.Run(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 50}})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if got := l.InFlight(); got != 0 {
		t.Fatalf("expected slot released, in flight=%d", got)
	}
}

func TestNewLauncherMissingBinary(t *testing.T) {
	_, err := NewLauncher(LauncherConfig{BinaryPath: filepath.Join(t.TempDir(), "lc0")})
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("expected ErrBinaryNotFound, got %v", err)
	}
	_, err = NewLauncher(LauncherConfig{BinaryPath: t.TempDir()})
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("expected ErrBinaryNotFound for directory, got %v", err)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	l, err := NewLauncher(fakeEngine(t, "normal"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	s, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if s.Pid() == 0 {
		t.Fatalf("expected running process")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Search(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 10}}); err == nil {
		t.Fatalf("expected search on closed session to fail")
	}
	if got := l.InFlight(); got != 0 {
		t.Fatalf("expected slot released once, in flight=%d", got)
	}
}

func TestParseBestMove(t *testing.T) {
	cases := []struct {
		line   string
		best   string
		ponder string
		ok     bool
	}{
		{"bestmove e2e4 ponder e7e5", "e2e4", "e7e5", true},
		{"bestmove e7e8q", "e7e8q", "", true},
		{"bestmove 0000", "0000", "", true},
		{"bestmove", "", "", false},
		{"info depth 1 pv e2e4", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		best, ponder, ok := ParseBestMove(tc.line)
		if best != tc.best || ponder != tc.ponder || ok != tc.ok {
			t.Errorf("ParseBestMove(%q) = %q,%q,%v want %q,%q,%v", tc.line, best, ponder, ok, tc.best, tc.ponder, tc.ok)
		}
	}
}

func TestBuildCommands(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("startpos: %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := buildPositionCommand(fen, []string{"a1a2"}); got != "position fen "+fen+" moves a1a2\n" {
		t.Fatalf("fen: %q", got)
	}
	tokens, err := buildGoTokens(Limits{MoveTimeMillis: 3000})
	if err != nil || strings.Join(tokens, " ") != "go movetime 3000" {
		t.Fatalf("go tokens: %v %v", tokens, err)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 3000}); got != 5*time.Second {
		t.Fatalf("search timeout: %s", got)
	}
}

func TestParseInfoMate(t *testing.T) {
	mv, cand, ok := parseInfo("info depth 12 multipv 3 score mate -2 nodes 100 pv h7h8 g8h8")
	if !ok || mv != 3 {
		t.Fatalf("parseInfo: ok=%v mv=%d", ok, mv)
	}
	if cand.Mate != -2 || cand.EvalCP != -30000 || cand.Move != "h7h8" || cand.Depth != 12 {
		t.Fatalf("unexpected candidate: %+v", cand)
	}
	if _, _, ok := parseInfo("info string hello"); ok {
		t.Fatalf("expected info without pv to be ignored")
	}
}
