package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/config"
	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/events"
	"github.com/fyrsmithlabs/sketchd/internal/execution"
	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/plan"
	"github.com/fyrsmithlabs/sketchd/internal/secrets"
	"github.com/fyrsmithlabs/sketchd/internal/session"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// offlineReply is what the fake provider draws when no model is
// configured: a small square in the middle of the canvas.
const offlineReply = `{"strokes": [[[0.45,0.45],[0.55,0.45],[0.55,0.55],[0.45,0.55],[0.45,0.45]]],
 "labels": {"stroke_0": "square"},
 "assistant_message": "Offline mode: drew a placeholder square.",
 "done": true}`

// retryBackoff is the first oracle retry delay; later retries double it.
const retryBackoff = 500 * time.Millisecond

// app holds every long-lived dependency of a sketchd process.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	nc        *nats.Conn
	store     store.Store
	oracle    *oracle.Oracle
	watcher   *validator.PhraseWatcher
	sessions  *session.Manager
}

// appOptions adjust wiring per command.
type appOptions struct {
	// stderrLogs keeps stdout free for a protocol stream.
	stderrLogs bool
}

// loadConfig loads and validates the configuration file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config, opts appOptions) (*logging.Logger, error) {
	lcfg, err := logging.ConfigFrom(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if opts.stderrLogs {
		lcfg.Output.Stdout = false
		lcfg.Output.Stderr = true
	}
	return logging.NewLogger(lcfg, nil)
}

// newApp wires the drawing stack. Everything acquired before a failure is
// released before returning.
//
// This function:
//  1. Initializes logging and telemetry
//  2. Connects to NATS when the arm or event stream needs it
//  3. Builds the oracle, validator and dispatcher shared by all sessions
//  4. Opens the session store and manager
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()
	z := logger.Underlying()

	a.telemetry, err = telemetry.New(ctx, telemetry.ConfigFrom(cfg.Observability, version), telemetry.WithLogger(z))
	if err != nil {
		return a, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.UsesNATS() {
		a.nc, err = connectNATS(cfg.NATS.URL, z)
		if err != nil {
			return a, err
		}
	}

	llm, err := newLLM(ctx, cfg, z)
	if err != nil {
		return a, err
	}
	a.oracle = oracle.New(llm, oracle.Config{
		Timeout: cfg.Oracle.Timeout,
		Grid:    coords.Grid{Size: cfg.Drawing.GridSize},
		Limits:  cfg.Drawing.Limits,
	})

	val, err := a.newValidator(ctx)
	if err != nil {
		return a, err
	}

	mapper, err := coords.NewMapper(cfg.Drawing.Box)
	if err != nil {
		return a, fmt.Errorf("drawing box: %w", err)
	}

	exec, err := a.newExecutor()
	if err != nil {
		return a, err
	}
	dispatcher := execution.NewDispatcher(exec,
		execution.WithChunkSize(cfg.Execution.ChunkSize),
		execution.WithLogger(z),
	)

	var pub events.Publisher = events.Nop{}
	if a.nc != nil && cfg.NATS.Events {
		pub = events.NewNATSPublisher(a.nc, cfg.NATS.SubjectPrefix)
	}

	metrics, err := controller.NewMetrics(a.telemetry.Meter(controller.InstrumentationName))
	if err != nil {
		z.Warn("controller metrics unavailable", zap.Error(err))
	}

	a.store, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return a, fmt.Errorf("failed to open session store: %w", err)
	}

	ctrlCfg := &controller.Config{
		RepairBudget:           cfg.Iteration.RepairBudget,
		PreviewMode:            cfg.Iteration.PreviewMode,
		ExecuteInvalidFallback: cfg.Execution.ExecuteInvalidFallback,
	}
	factory := func(id string, mem *memory.Memory) (*controller.Controller, error) {
		return controller.New(mem, a.oracle, val,
			controller.WithSessionID(id),
			controller.WithConfig(ctrlCfg),
			controller.WithTracker(plan.NewTracker(mem, &cfg.Plan, plan.WithLogger(plan.NewLogger(z)))),
			controller.WithMapper(mapper),
			controller.WithDispatcher(dispatcher),
			controller.WithEvents(pub),
			controller.WithLogger(controller.NewLogger(z)),
			controller.WithMetrics(metrics),
		)
	}
	a.sessions, err = session.NewManager(a.store, factory, cfg.Sessions.MaxActive, session.WithLogger(z))
	if err != nil {
		return a, fmt.Errorf("failed to create session manager: %w", err)
	}

	logger.Info(ctx, "sketchd initialized",
		zap.String("oracle", a.oracle.Name()),
		zap.String("executor", exec.Name()),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("nats_connected", a.nc != nil),
		zap.Bool("telemetry", cfg.Observability.EnableTelemetry))
	return a, nil
}

func connectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("sketchd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}

// newLLM builds the configured backend behind logging, prompt scrubbing,
// retry and rate limiting. The outermost layer logs each call once, after
// retries.
func newLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (oracle.LLM, error) {
	llm, err := oracle.NewLLM(ctx, cfg.Oracle.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s oracle: %w", cfg.Oracle.Provider, err)
	}
	// Only remote providers need their prompts scrubbed.
	var redactor oracle.Redactor
	if fake, ok := llm.(*oracle.FakeLLM); ok {
		fake.Fallback = &oracle.FakeReply{Text: offlineReply}
	} else if cfg.Oracle.Scrub.Enabled {
		s, err := secrets.New(&cfg.Oracle.Scrub)
		if err != nil {
			return nil, fmt.Errorf("oracle scrubber: %w", err)
		}
		redactor = s
	}
	return oracle.Wrap(llm,
		oracle.Logging(logger),
		oracle.Scrub(redactor, logger),
		oracle.Retry(cfg.Oracle.MaxRetries, retryBackoff),
		oracle.RateLimit(cfg.Oracle.RPS, cfg.Oracle.Burst),
	), nil
}

// newValidator builds the validator. A configured phrase file is loaded
// and watched for edits.
func (a *app) newValidator(ctx context.Context) (*validator.Validator, error) {
	z := a.logger.Underlying()
	classifier := validator.NewSwappableClassifier(validator.DefaultClassifier())
	if path := a.cfg.Validator.PhraseFile; path != "" {
		w, err := validator.NewPhraseWatcher(path, classifier, z)
		if err != nil {
			return nil, fmt.Errorf("loading phrase file: %w", err)
		}
		a.watcher = w
		go w.Start(ctx)
	}

	metrics, err := validator.NewMetrics(a.telemetry.Meter(validator.InstrumentationName))
	if err != nil {
		z.Warn("validator metrics unavailable", zap.Error(err))
	}
	val, err := validator.New(&a.cfg.Validator, validator.WithClassifier(classifier), validator.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	return val, nil
}

func (a *app) newExecutor() (execution.Executor, error) {
	switch a.cfg.Execution.Backend {
	case "nats":
		exec, err := execution.NewNATSExecutor(a.nc, a.cfg.NATS.SubjectPrefix, a.cfg.Execution.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS executor: %w", err)
		}
		return exec, nil
	default:
		return execution.NewSimulatedExecutor(a.logger.Underlying(), 0), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	var errs []error
	// The manager saves active sessions and closes the store.
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close(ctx))
	} else if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.oracle != nil {
		errs = append(errs, a.oracle.Close())
	}
	if a.nc != nil {
		errs = append(errs, a.nc.Drain())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}
