package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

var ErrBinaryNotFound = errors.New("uci: engine binary not found")

type LauncherConfig struct {
	BinaryPath string
	// MaxProcs bounds how many engine processes may run at once.
	MaxProcs int
	Options  Options
	Logger   *zap.Logger
}

// Launcher starts a fresh engine process for every request. Sessions are
// never reused; the slot channel only limits concurrent processes.
type Launcher struct {
	binaryPath string
	opt        Options
	slots      chan struct{}
	logger     *zap.Logger
}

func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("%w: binary path required", ErrBinaryNotFound)
	}
	info, err := os.Stat(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrBinaryNotFound, cfg.BinaryPath)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}

	capacity := cfg.MaxProcs
	if capacity <= 0 {
		capacity = defaultMaxProcs()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Launcher{
		binaryPath: cfg.BinaryPath,
		opt:        cfg.Options,
		slots:      make(chan struct{}, capacity),
		logger:     logger,
	}, nil
}

// Launch waits for a free slot, spawns the engine and completes the handshake.
// The caller must Close the session; closing releases the slot.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	session, err := NewSession(ctx, l.binaryPath, l.opt, l.logger)
	if err != nil {
		<-l.slots
		return nil, err
	}
	session.onClose = func() { <-l.slots }
	return session, nil
}

// Run performs a single search on a fresh session and always terminates the
// process before returning.
func (l *Launcher) Run(ctx context.Context, req SearchRequest) (resp SearchResponse, err error) {
	session, err := l.Launch(ctx)
	if err != nil {
		return SearchResponse{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			l.logger.Warn("engine close failed", zap.Int("pid", session.Pid()), zap.Error(cerr))
		}
	}()
	return session.Search(ctx, req)
}

// InFlight reports how many engine processes are currently running.
func (l *Launcher) InFlight() int {
	return len(l.slots)
}

func (l *Launcher) BinaryPath() string {
	return l.binaryPath
}

func defaultMaxProcs() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
