package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ultrashots/pkg/broadcast"
	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
	"ultrashots/pkg/inertia"
	"ultrashots/pkg/logger"
	"ultrashots/pkg/media"
	"ultrashots/pkg/seed"
	"ultrashots/pkg/session"
	"ultrashots/process/sanitize"
)

var (
	cfgFile string

	// populated by PersistentPreRunE and shared with all subcommands
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "ultrashots",
	Short:        "Ultrashots studio dashboard",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if log, err = logger.New(cfg.Log); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		slog.SetDefault(log)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := database.Migrate(cmd.Context(), db, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migration completed")
		return nil
	},
}

var seedOnly []string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed roles, users, customers, projects, subscribers and logos",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer database.Close(db)
		return runSeed(cmd.Context(), cmd, db, seedOnly)
	},
}

var freshSeed bool

var freshCmd = &cobra.Command{
	Use:   "fresh",
	Short: "Drop every table and migrate again",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := sanitize.Fresh(cmd.Context(), db, log); err != nil {
			return err
		}
		if !freshSeed {
			return nil
		}
		return runSeed(cmd.Context(), cmd, db, nil)
	},
}

var (
	truncateTables string
	truncateYes    bool
)

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Empty application tables and reset their ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer database.Close(db)

		tables := sanitize.Existing(db, sanitize.ParseTables(truncateTables, log))
		if len(tables) == 0 {
			return errors.New("no tables to truncate")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "About to TRUNCATE: %s\n", strings.Join(tables, ", "))
		if fks, err := sanitize.ForeignKeys(cmd.Context(), db); err != nil {
			log.Warn("could not inspect foreign keys", "error", err)
		} else {
			for _, fk := range sanitize.Dependents(fks, tables) {
				fmt.Fprintf(out, "  also affects %s (%s)\n", fk, fk.Definition)
			}
		}
		if !truncateYes && !confirm(cmd, "Type 'yes' to continue: ") {
			fmt.Fprintln(out, "aborted")
			return nil
		}
		if err := sanitize.Truncate(cmd.Context(), db, tables); err != nil {
			return err
		}
		fmt.Fprintln(out, "truncate completed")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")

	seedCmd.Flags().StringSliceVar(&seedOnly, "only", nil, "run only these seeders (comma separated)")
	freshCmd.Flags().BoolVar(&freshSeed, "seed", false, "seed after migrating")
	truncateCmd.Flags().StringVar(&truncateTables, "tables", strings.Join(sanitize.DefaultTables, ","), "comma separated tables")
	truncateCmd.Flags().BoolVar(&truncateYes, "yes", false, "skip the confirmation prompt")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, freshCmd, truncateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runSeed(ctx context.Context, cmd *cobra.Command, db *gorm.DB, only []string) error {
	runner, err := seed.NewRunner(db,
		seed.WithLogger(log),
		seed.WithOutput(cmd.OutOrStdout()),
		seed.WithMedia(media.NewStore(cfg.Uploads.Base, cfg.Uploads.MaxSize)),
	)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		return runner.Only(ctx, only...)
	}
	return runner.Run(ctx)
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	store, closeStore, err := sessionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	manifest, err := inertia.LoadManifest(cfg.Assets.Manifest, cfg.Assets.BaseURL, log)
	if err != nil {
		return err
	}
	hub := broadcast.NewHub(log)
	defer hub.Close()

	router, err := Configure(Deps{Config: cfg, Log: log, DB: db, Sessions: store, Manifest: manifest, Hub: hub})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// a broken manifest watcher only stops hot reloads
		if err := manifest.Watch(gctx); err != nil {
			log.Warn("manifest watch stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}

// sessionStore returns the configured session backend and a func releasing it.
func sessionStore(ctx context.Context) (session.Store, func(), error) {
	if cfg.Session.Driver != config.SessionRedis {
		return session.NewMemoryStore(), func() {}, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := session.OpenRedis(pingCtx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return session.NewRedisStore(client, "ultrashots:session:"), func() { _ = client.Close() }, nil
}
