package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/bankql/internal/adapter"
	"github.com/sadopc/bankql/internal/chat"
	"github.com/sadopc/bankql/internal/config"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/render"
	"github.com/sadopc/bankql/internal/server"

	// Register database adapters
	_ "github.com/sadopc/bankql/internal/adapter/duckdb"
	_ "github.com/sadopc/bankql/internal/adapter/mysql"
	_ "github.com/sadopc/bankql/internal/adapter/postgres"
	_ "github.com/sadopc/bankql/internal/adapter/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errTurnFailed makes the process exit non-zero after the response has
// already been printed.
var errTurnFailed = errors.New("turn failed")

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errTurnFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:   "bankql",
		Short: "Ask questions of a banking database in plain English",
		Long: `bankql turns natural-language questions about a banking database into
SQL, corrects and validates the SQL, and only then runs it.

Examples:
  bankql init                                  # Create the demo banking.db
  bankql ask "show all customers"              # One question
  bankql ask "show recent transactions" --answer "last 7 days"
  bankql chat                                  # Conversational terminal UI
  bankql serve                                 # HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file path")

	// withApp loads config, connects, and hands the assembled app to fn.
	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		cfg, err := loadConfig(configFlag)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := setup(ctx, cfg, stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}

	var (
		answers []string
		proceed bool
		format  string
		verbose bool
	)
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one natural-language question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				resp := a.ask(ctx, joinArgs(args), answers, proceed)
				a.renderer.Verbose = verbose
				if err := printResponse(stdout, a.renderer, resp, format); err != nil {
					return err
				}
				if resp.Status == pipeline.StatusError {
					return errTurnFailed
				}
				return nil
			})
		},
	}
	askCmd.Flags().StringArrayVar(&answers, "answer", nil, "Answer to a clarifying question, in order (repeatable)")
	askCmd.Flags().BoolVar(&proceed, "proceed", false, "Skip clarifying questions and use reasonable defaults")
	askCmd.Flags().StringVarP(&format, "format", "o", "table", "Result format: table, csv or json")
	askCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show corrections and confidence")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the conversational terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			// The TUI owns the terminal, so logs go to a file or nowhere.
			logw := io.Discard
			if path, err := config.ConfigDir(); err == nil {
				if f, err := openLogFile(path); err == nil {
					defer f.Close()
					logw = f
				}
			}
			a, err := setup(cmd.Context(), cfg, logw)
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(chat.New(a.pipeline, a.renderer), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running chat: %w", err)
			}
			return nil
		},
	}

	var addrFlag string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				cfg := a.cfg.Server
				if addrFlag != "" {
					cfg.Addr = addrFlag
				}
				srv := server.New(cfg, server.Deps{
					Pipeline:  a.pipeline,
					Corrector: a.corrector,
					Validator: a.validator,
					Catalog:   a.catalog,
					History:   a.history,
					Pinger:    a.conn,
					Logger:    a.log,
				})

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start() }()
				a.log.Info("http server listening", "addr", cfg.Addr)

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}
				a.log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides server.addr)")

	validateCmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check SQL against the safety, syntax and schema rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res := a.validator.Validate(ctx, joinArgs(args))
				th := a.renderer.Theme
				if res.OK() {
					fmt.Fprintln(stdout, th.SuccessText.Render("OK")+" ("+string(a.validator.Level())+")")
					return nil
				}
				fmt.Fprintf(stdout, "%s [%s] %s\n", th.ErrorText.Render("REJECTED"), res.Stage, res.Message)
				if res.Suggestion != "" {
					fmt.Fprintln(stdout, th.MutedText.Render(res.Suggestion))
				}
				return errTurnFailed
			})
		},
	}

	correctCmd := &cobra.Command{
		Use:   "correct <sql>",
		Short: "Apply the SQL correction rules and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			out, trace := correct.New(correct.Options{RowLimit: cfg.Corrector.RowLimit}).Correct(joinArgs(args))
			r := render.New(cfg.Theme, cfg.Database.Adapter)
			fmt.Fprintln(stdout, r.SQL(out))
			if len(trace) > 0 {
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, trace.String())
			}
			return nil
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "List tables and columns of the connected database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				cat := a.catalog.Current()
				for _, t := range cat.Tables() {
					fmt.Fprintf(stdout, "%s(%s)\n", a.renderer.Theme.Title.Render(t), strings.Join(cat.Columns(t), ", "))
				}
				return nil
			})
		},
	}

	var (
		limitFlag  int
		searchFlag string
		clearFlag  bool
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), configFlag, stdout, searchFlag, limitFlag, clearFlag)
		},
	}
	historyCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum entries to show")
	historyCmd.Flags().StringVarP(&searchFlag, "search", "s", "", "Only show entries whose question or SQL contains this text")
	historyCmd.Flags().BoolVar(&clearFlag, "clear", false, "Delete all history")

	var (
		fileFlag        string
		forceFlag       bool
		writeConfigFlag bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the demo banking database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			path := fileFlag
			if path == "" {
				path = cfg.Database.File
			}
			created, err := initDemo(cmd.Context(), path, forceFlag)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(stdout, "Created demo banking database at %s\n", path)
			} else {
				fmt.Fprintf(stdout, "%s is already initialized\n", path)
			}
			if !writeConfigFlag {
				return nil
			}
			cfgPath, err := writeDemoConfig(cfg, configFlag, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote config to %s\n", cfgPath)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Database file (default: database.file from config)")
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Recreate the database if it exists")
	initCmd.Flags().BoolVar(&writeConfigFlag, "write-config", false, "Save a config pointing at the demo database")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "bankql %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(stdout, "\nSupported adapters:")
			for _, name := range adapter.Names() {
				fmt.Fprintf(stdout, "  - %s\n", name)
			}
		},
	}

	rootCmd.AddCommand(askCmd, chatCmd, serveCmd, validateCmd, correctCmd, schemaCmd, historyCmd, initCmd, versionCmd)
	return rootCmd
}

func printResponse(w io.Writer, r *render.Renderer, resp pipeline.Response, format string) error {
	switch format {
	case "csv", "json":
		if resp.Status != pipeline.StatusSuccess || resp.Result == nil {
			fmt.Fprint(w, r.Response(resp))
			return nil
		}
		if format == "csv" {
			return render.WriteCSV(w, resp.Result)
		}
		return render.WriteJSON(w, resp.Result)
	case "table", "":
		fmt.Fprint(w, r.Response(resp))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, csv or json)", format)
	}
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(dir+"/bankql.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
