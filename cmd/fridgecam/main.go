package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/fridgecam/internal/config"
	"github.com/vbonduro/fridgecam/internal/db"
	"github.com/vbonduro/fridgecam/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fridgecam",
		Short:        "Fridge camera inventory service",
		Long:         "fridgecam captures photos from fridge cameras, recognizes the food in them and keeps an inventory.",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		serveCmd(),
		workerCmd(),
		migrateCmd(),
		userCmd(),
		captureCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("fridgecam %s\n", Version)
			},
		},
	)
	return cmd
}

// setup loads configuration and the logger, and returns a context cancelled on SIGINT or SIGTERM.
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	return ctx, stop, cfg, logger, cleanup, nil
}

func serveCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, recognition worker and stale-photo sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer stop()

			if noWorker && cfg.QueueBackend == "memory" {
				return errors.New("--no-worker requires a shared queue backend (asynq or nats)")
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.server().ListenAndServe(gctx, cfg.ListenAddr) })
			if !noWorker {
				task, err := a.recognitionTask()
				if err != nil {
					return err
				}
				g.Go(func() error { return a.queue.Consume(gctx, task.Run) })
				g.Go(func() error { return a.sweeper().Run(gctx) })
			}

			logger.Info("fridgecam started", "version", Version, "addr", cfg.ListenAddr, "queue", cfg.QueueBackend)
			err = g.Wait()
			logger.Info("fridgecam stopped")
			return ignoreCanceled(err)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only; recognition runs in a separate worker process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the recognition worker and stale-photo sweeper without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer stop()

			if cfg.QueueBackend == "memory" {
				return errors.New("the worker needs a shared queue backend: set QUEUE_BACKEND to asynq or nats")
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.recognitionTask()
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.queue.Consume(gctx, task.Run) })
			g.Go(func() error { return a.sweeper().Run(gctx) })

			logger.Info("recognition worker started", "version", Version, "queue", cfg.QueueBackend)
			return ignoreCanceled(g.Wait())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer cleanup()

			gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			logger.Info("migrations applied", "driver", cfg.DBDriver)
			return db.Close(gdb)
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var (
		username string
		password string
		staff    bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.userService().CreateUser(ctx, username, password, staff)
			if err != nil {
				return err
			}
			cmd.Printf("created user %q (id %d, staff=%t)\n", u.Username, u.ID, u.IsStaff)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "login name")
	create.Flags().StringVar(&password, "password", "", "password (at least 8 characters)")
	create.Flags().BoolVar(&staff, "staff", false, "grant staff privileges")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func captureCmd() *cobra.Command {
	var externalID string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a photo from a device and queue it for recognition",
		Long: "capture fetches one photo from the device's camera. With the memory queue backend the " +
			"recognition task is picked up later by the sweeper of a running serve process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			dev, err := a.devices.GetByExternalID(ctx, externalID)
			if err != nil {
				return fmt.Errorf("failed to look up device: %w", err)
			}
			if dev == nil {
				return fmt.Errorf("device %q not found", externalID)
			}

			photo, err := a.captureService().TriggerCapture(ctx, dev.ID, nil)
			if err != nil {
				return err
			}
			cmd.Printf("captured photo %d from %s (%s)\n", photo.ID, dev.ExternalID, photo.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&externalID, "device", "", "external ID of the device")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
