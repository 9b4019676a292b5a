package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/audit"
	"github.com/sadopc/bankql/internal/bankdb"
	"github.com/sadopc/bankql/internal/config"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/fallback"
	"github.com/sadopc/bankql/internal/generate"
	"github.com/sadopc/bankql/internal/history"
	"github.com/sadopc/bankql/internal/logging"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/render"
	"github.com/sadopc/bankql/internal/schema"
	"github.com/sadopc/bankql/internal/validate"
)

// app holds everything a command needs once the database is connected.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	conn      adapter.Connection
	catalog   *schema.Store
	validator *validate.Validator
	corrector *correct.Corrector
	pipeline  *pipeline.Pipeline
	history   *history.History
	audit     *audit.Logger
	renderer  *render.Renderer
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// setup connects to the configured database and assembles the pipeline.
// Optional sinks that fail to open are logged and skipped.
func setup(ctx context.Context, cfg *config.Config, logw io.Writer) (*app, error) {
	log := logging.New(cfg.Log, logw)
	a := &app{cfg: cfg, log: log}

	name := cfg.Database.Adapter
	dsn := cfg.Database.BuildDSN()
	if name == "" {
		name = adapter.Detect(dsn)
	}
	log.Debug("connecting", "database", cfg.Database.DisplayString())
	conn, err := adapter.Open(ctx, name, dsn, adapter.RetryPolicy{
		MaxTries: cfg.Database.ConnectAttempts,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	a.conn = conn

	a.catalog, err = schema.NewStore(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}
	log.Info("schema loaded", "adapter", conn.AdapterName(), "database", conn.DatabaseName(),
		"tables", a.catalog.Current().Len())

	level, err := validate.ParseLevel(cfg.Validator.Level)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.validator = validate.New(level, conn, a.catalog, log)
	a.corrector = correct.New(correct.Options{RowLimit: cfg.Corrector.RowLimit})

	gen, err := generate.New(generate.Options{
		Provider:    cfg.Generator.Provider,
		Model:       cfg.Generator.Model,
		BaseURL:     cfg.Generator.BaseURL,
		APIKey:      cfg.Generator.APIKey(),
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     cfg.Generator.Timeout,
	})
	if err != nil {
		log.Warn("generator unavailable, serving fallback queries only", "error", err)
		gen = generate.Disabled{}
	}

	var sinks []audit.Sink
	if cfg.Audit.Enabled {
		if path, err := cfg.AuditPath(); err != nil {
			log.Warn("audit path", "error", err)
		} else if a.audit, err = audit.New(path, cfg.Audit.MaxSizeMB); err != nil {
			log.Warn("could not open audit log", "path", path, "error", err)
		} else {
			sinks = append(sinks, a.audit)
		}
	}
	if cfg.History.Enabled {
		if err := a.openHistory(); err != nil {
			log.Warn("could not open history", "error", err)
		} else {
			sinks = append(sinks, a.history)
		}
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Classifier: ambiguity.New(),
		Generator:  gen,
		Corrector:  a.corrector,
		Validator:  a.validator,
		Executor:   conn,
		Fallback:   fallback.Default(),
		Catalog:    a.catalog,
		Audit:      audit.Tee(sinks...),
		Logger:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.renderer = render.New(cfg.Theme, conn.AdapterName())
	return a, nil
}

func (a *app) openHistory() error {
	path, err := a.cfg.HistoryPath()
	if err != nil {
		return err
	}
	a.history, err = history.Open(path, a.log)
	return err
}

// Close releases the connection and any open sinks.
func (a *app) Close() error {
	var errs []error
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	errs = append(errs, a.history.Close())
	return errors.Join(errs...)
}

// ask runs one question and, when clarification is needed and answers were
// supplied (or proceed is set), resumes with them.
func (a *app) ask(ctx context.Context, question string, answers []string, proceed bool) pipeline.Response {
	resp := a.pipeline.Handle(ctx, question, nil)
	if resp.Status != pipeline.StatusClarification || (len(answers) == 0 && !proceed) {
		return resp
	}
	text, actx := ambiguity.Resume(question, resp.FollowUpQuestions, answers)
	return a.pipeline.Handle(ctx, text, actx)
}

// initDemo creates the demo banking database at path.
func initDemo(ctx context.Context, path string, force bool) (bool, error) {
	if force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	ok, err := bankdb.Initialized(ctx, db)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := bankdb.Create(ctx, db); err != nil {
		return false, err
	}
	return true, nil
}

// writeDemoConfig saves cfg, pointed at the sqlite file dbPath, to path or
// to the default config location.
func writeDemoConfig(cfg *config.Config, path, dbPath string) (string, error) {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", err
	}
	cfg.Database = config.DatabaseConfig{
		Adapter:         "sqlite",
		File:            abs,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
