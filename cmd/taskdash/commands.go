package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"task-dashboard/backend/internal/query"
	"task-dashboard/backend/internal/repositories"
	"task-dashboard/backend/internal/seed"
	"task-dashboard/backend/internal/services"
	"task-dashboard/backend/internal/store"
)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			a.start(ctx)

			server := &http.Server{
				Addr:         cfg.GetServerAddr(),
				Handler:      a.router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("api listening", "addr", server.Addr, "environment", cfg.Server.Environment)
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			log.Info("server stopped")
			return nil
		},
	}
}

func statsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics for the seed dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := seededService(cmd.Context(), load)
			if err != nil {
				return err
			}
			stats, err := svc.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func tasksCmd(load loader) *cobra.Command {
	var raw query.RawParams

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the seed tasks matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := seededService(cmd.Context(), load)
			if err != nil {
				return err
			}
			tasks, err := svc.Query(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		},
	}

	cmd.Flags().StringVar(&raw.Search, "search", "", "case-insensitive text search")
	cmd.Flags().StringVar(&raw.Status, "status", "", "all, pending or completed")
	cmd.Flags().StringVar(&raw.Priority, "priority", "", "all, low, medium or high")
	cmd.Flags().StringVar(&raw.Category, "category", "", "all or a category id")
	cmd.Flags().StringVar(&raw.Date, "date", "", "all, today, overdue or upcoming")
	cmd.Flags().StringVar(&raw.SortBy, "sort-by", "", "created, dueDate, priority or title")
	return cmd
}

func seedDBCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-db",
		Short: "Copy the embedded dataset into the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("DB_DSN is required")
			}

			pool, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			tasks, categories, err := seed.Load()
			if err != nil {
				return err
			}

			repo := repositories.NewSeedRepository(pool.DB)
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := repo.Import(cmd.Context(), tasks, categories); err != nil {
				return err
			}
			count, err := repo.Count(cmd.Context())
			if err != nil {
				return err
			}

			log.Info("database seeded", "driver", cfg.Database.Driver, "tasks", count, "categories", len(categories))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tasks\n", count)
			return nil
		},
	}
}

// seededService builds an uncached service over the configured seed source.
func seededService(ctx context.Context, load loader) (services.TaskService, error) {
	cfg, log, err := load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}
	defer a.close()

	tasks, categories, err := a.loadSeed(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewTaskService(store.New(tasks, categories)), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
