package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/corentings/chess/v2"

	"github.com/park285/chess-tutor/internal/advisor"
	"github.com/park285/chess-tutor/internal/chess/uci"
	"github.com/park285/chess-tutor/internal/coach"
	"github.com/park285/chess-tutor/internal/config"
	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/obslog"
	"github.com/park285/chess-tutor/internal/remote"
)

func main() {
	fenFlag := flag.String("fen", "", "position to analyse (default: start position)")
	explain := flag.Bool("explain", false, "ask the coach to explain the move")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	logger, err := obslog.InitFromEnv()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	game := chess.NewGame()
	if *fenFlag != "" {
		opt, err := chess.FEN(*fenFlag)
		if err != nil {
			log.Fatalf("bad fen: %v", err)
		}
		game = chess.NewGame(opt)
	}
	pos := game.Position()

	launcher, err := uci.NewLauncher(uci.LauncherConfig{
		BinaryPath: cfg.Engine.Path,
		MaxProcs:   1,
		Options: uci.Options{
			Threads:          cfg.Engine.Threads,
			HashMB:           cfg.Engine.HashMB,
			HandshakeTimeout: cfg.Engine.HandshakeTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	adv, err := advisor.New(launcher, advisor.Options{MoveTime: cfg.MoveTime()}, logger)
	if err != nil {
		log.Fatalf("advisor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	advice, err := adv.Advise(ctx, pos)
	if err != nil {
		fmt.Printf("no move: kind=%s err=%v\n", advisor.KindOf(err), err)
		return
	}
	move, err := advisor.Validate(pos, advice.Move)
	if err != nil {
		fmt.Printf("engine returned unusable move %q: %v\n", advice.Move, err)
		return
	}
	san := chess.AlgebraicNotation{}.Encode(pos, move)
	fmt.Printf("best=%s san=%s eval_cp=%d ponder=%s took=%s\n", advice.Move, san, advice.EvalCP, advice.Ponder, advice.Duration.Round(time.Millisecond))
	for i, c := range advice.Candidates {
		fmt.Printf("  #%d %s cp=%d mate=%d depth=%d\n", i+1, c.Move, c.EvalCP, c.Mate, c.Depth)
	}

	if !*explain {
		return
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages: %v", err)
	}
	cc, err := coach.New(coach.Config{
		Endpoint:   cfg.Coach.Endpoint,
		APIKey:     cfg.Coach.APIKey,
		APIVersion: cfg.Coach.APIVersion,
		Deployment: cfg.Coach.Deployment,
		Style:      cfg.Coach.Style,
	}, remote.NewClient(remote.WithLogger(logger)), catalog, logger)
	if err != nil {
		fmt.Printf("coach unavailable: kind=%s err=%v\n", remote.KindOf(err), err)
		return
	}
	side := "White"
	if pos.Turn() == chess.Black {
		side = "Black"
	}
	text, err := cc.Explain(ctx, coach.Request{FEN: pos.String(), MoveSAN: san, Side: side})
	if err != nil {
		fmt.Printf("explain failed: kind=%s err=%v\n", remote.KindOf(err), err)
		fmt.Println(cc.Fallback())
		return
	}
	fmt.Println(text)
}
