package tutorbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-tutor/internal/advisor"
	"github.com/park285/chess-tutor/internal/chess/uci"
	"github.com/park285/chess-tutor/internal/coach"
	"github.com/park285/chess-tutor/internal/config"
	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/obslog"
	"github.com/park285/chess-tutor/internal/remote"
	"github.com/park285/chess-tutor/internal/speech"
	"github.com/park285/chess-tutor/internal/tutor"
	"github.com/park285/chess-tutor/internal/web"
	"github.com/park285/chess-tutor/pkg/tutordto"
)

type Deps struct {
	Service  *tutor.Service
	Server   *web.Server
	Hub      *web.Hub
	Catalog  *msgcat.Catalog
	Features tutordto.Features

	closers []func() error
}

// Close stops the websocket hub and releases the session store and repository.
// Pending speech jobs should be drained with Service.Wait first.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Hub != nil {
		d.Hub.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New wires the tutor from cfg. The engine, coach and speech features degrade
// independently; storage that is configured but unreachable is fatal. A nil
// logger means the process-wide obslog logger.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = obslog.L()
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d := &Deps{
		Catalog:  catalog,
		Features: tutordto.Features{Issues: map[string]string{}},
	}
	for _, fe := range cfg.Validate() {
		d.Features.Issues[fe.Feature] = fe.Err.Error()
		logger.Warn("feature_disabled", zap.String("feature", fe.Feature), zap.Error(fe.Err))
	}

	deps := tutor.Deps{Catalog: catalog}

	if _, off := d.Features.Issues[config.FeatureEngine]; !off {
		adv, err := buildAdvisor(cfg, logger)
		if err != nil {
			d.Features.Issues[config.FeatureEngine] = err.Error()
			logger.Warn("feature_disabled", zap.String("feature", config.FeatureEngine), zap.Error(err))
		} else {
			deps.Advisor = adv
			d.Features.Engine = true
		}
	}

	httpClient := remote.NewClient(remote.WithLogger(logger))
	if _, off := d.Features.Issues[config.FeatureCoach]; !off {
		cc, err := coach.New(coach.Config{
			Endpoint:   cfg.Coach.Endpoint,
			APIKey:     cfg.Coach.APIKey,
			APIVersion: cfg.Coach.APIVersion,
			Deployment: cfg.Coach.Deployment,
			Style:      cfg.Coach.Style,
		}, httpClient, catalog, logger)
		if err != nil {
			d.Features.Issues[config.FeatureCoach] = err.Error()
		} else {
			deps.Explainer = cc
			d.Features.Coach = true
			d.Features.CoachStyle = cc.Style()
		}
	}
	if _, off := d.Features.Issues[config.FeatureSpeech]; !off {
		sc, err := speech.New(speech.Config{
			APIKey:   cfg.Speech.APIKey,
			Region:   cfg.Speech.Region,
			Endpoint: cfg.Speech.Endpoint,
			Voice:    cfg.Speech.Voice,
		}, httpClient, logger)
		if err != nil {
			d.Features.Issues[config.FeatureSpeech] = err.Error()
		} else {
			deps.Synthesizer = sc
			d.Features.Speech = true
		}
	}

	if err := d.buildStorage(ctx, cfg, &deps, logger); err != nil {
		_ = d.Close()
		return nil, err
	}

	d.Hub = web.NewHub(logger.Named("ws"))
	deps.Publisher = d.Hub

	svc, err := tutor.NewService(deps, tutor.Config{
		MoveTimeout:    cfg.MoveTimeout,
		ExplainTimeout: cfg.ExplainTimeout,
	}, logger.Named("tutor"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Service = svc
	d.Server = web.NewServer(svc, d.Hub, catalog, d.Features, logger.Named("http"))

	logger.Info("tutor_ready",
		zap.Bool("engine", d.Features.Engine),
		zap.Bool("coach", d.Features.Coach),
		zap.Bool("speech", d.Features.Speech),
	)
	return d, nil
}

func buildAdvisor(cfg *config.Config, logger *zap.Logger) (*advisor.Advisor, error) {
	launcher, err := uci.NewLauncher(uci.LauncherConfig{
		BinaryPath: cfg.Engine.Path,
		MaxProcs:   cfg.Engine.MaxProcs,
		Options: uci.Options{
			Threads:          cfg.Engine.Threads,
			HashMB:           cfg.Engine.HashMB,
			HandshakeTimeout: cfg.Engine.HandshakeTimeout,
		},
		Logger: logger.Named("uci"),
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return advisor.New(launcher, advisor.Options{MoveTime: cfg.MoveTime()}, logger.Named("advisor"))
}

func (d *Deps) buildStorage(ctx context.Context, cfg *config.Config, deps *tutor.Deps, logger *zap.Logger) error {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := tutor.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		d.closers = append(d.closers, rdb.Close)
		deps.Store = tutor.NewRedisStore(rdb, cfg.SessionTTL, cfg.ClipTTL)
	} else {
		logger.Info("session_store_memory")
		deps.Store = tutor.NewMemoryStore(cfg.SessionTTL, cfg.ClipTTL)
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := tutor.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		deps.Repo = repo
	} else {
		logger.Info("game_history_memory")
		deps.Repo = tutor.NewMemoryRepository()
	}
	return nil
}
