package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/nadmax/tracksync/internal/config"
	"github.com/nadmax/tracksync/internal/dashboard"
	"github.com/nadmax/tracksync/internal/lock"
	"github.com/nadmax/tracksync/internal/notify"
	"github.com/nadmax/tracksync/internal/repository"
	"github.com/nadmax/tracksync/internal/scheduler"
	"github.com/nadmax/tracksync/internal/trackingtime"
	"github.com/spf13/cobra"
)

var errorColor = color.New(color.FgRed)

type options struct {
	path        string
	once        bool
	interval    time.Duration
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tracksync [path]",
		Short: "Snapshot TrackingTime tasks into a database table",
		Long: `tracksync polls the TrackingTime tasks API and appends one row per task
assigned to a project to the configured table, creating the table if needed.

By default it runs a cycle immediately and then once per interval until
interrupted. With --once it runs a single cycle and exits non-zero on failure.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if cmd.Flags().Changed("path") {
					return errors.New("config path given both as argument and --path")
				}
				opts.path = args[0]
			}

			cfg, err := config.Load(opts.path)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("interval") {
				if opts.interval <= 0 {
					return fmt.Errorf("--interval must be positive, got %s", opts.interval)
				}
				cfg.Schedule.Interval = config.Duration(opts.interval)
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = opts.metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, opts.once)
		},
	}

	cmd.Flags().StringVarP(&opts.path, "path", "p", config.DefaultPath, "path to the connections file (JSON or YAML)")
	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single cycle and exit")
	cmd.Flags().DurationVar(&opts.interval, "interval", config.DefaultInterval, "delay between cycles")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address for the status and metrics server (empty disables it)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	repo, err := repository.Open(cfg.DB.Driver, cfg.DSN(), cfg.DB.TableName)
	if err != nil {
		return err
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	client := trackingtime.NewClient(
		cfg.API.URL,
		cfg.Credentials.Login,
		cfg.Credentials.Password,
		trackingtime.WithTimeout(cfg.Schedule.RequestTimeout.Std()),
		trackingtime.WithMinInterval(cfg.Schedule.MinFetchInterval.Std()),
	)

	dash := dashboard.NewDashboard(dashboard.DefaultCapacity)
	schedOpts := []scheduler.Option{
		scheduler.WithRecorder(dash),
		scheduler.WithNotifier(newNotifier(cfg)),
	}

	if cfg.RedisAddr != "" {
		locker, err := lock.NewRedisLocker(cfg.RedisAddr, lock.KeyForTable(cfg.DB.TableName))
		if err != nil {
			return err
		}

		defer func() {
			if err := locker.Close(); err != nil {
				log.Printf("failed to close lock client: %v", err)
			}
		}()

		schedOpts = append(schedOpts, scheduler.WithLocker(locker, cfg.LockTTL()))
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
	}

	sched := scheduler.New(client, repo, cfg.Schedule.Interval.Std(), schedOpts...)

	if once {
		return sched.RunOnce(ctx)
	}

	if cfg.MetricsAddr != "" {
		srv := startStatusServer(cfg.MetricsAddr, dash)
		defer shutdownStatusServer(srv)
	}

	return sched.Run(ctx)
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notify.APIKey == "" {
		return notify.LogNotifier{}
	}

	return notify.NewEmailNotifier(
		cfg.Notify.APIKey,
		cfg.Notify.FromName,
		cfg.Notify.FromAddress,
		cfg.Notify.To,
		cfg.DB.TableName,
	)
}
