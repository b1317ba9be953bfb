package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/safari/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safari/internal/jobs"
	"github.com/MarkoPoloResearchLab/safari/internal/lock"
	"github.com/MarkoPoloResearchLab/safari/internal/logging"
	"github.com/MarkoPoloResearchLab/safari/internal/notify"
	"github.com/MarkoPoloResearchLab/safari/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const redisPingTimeout = 2 * time.Second

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "safarid: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "safarid",
		Short:         "Safari seat reservation, vehicle allocation and gate API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	registerFlags(cmd)
	return cmd
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.ConfigFile != "" {
		logger.Info("config file loaded", zap.String("path", cfg.ConfigFile))
	}

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, cfg.AutoMigrate); err != nil {
		return err
	}

	var background sync.WaitGroup
	defer background.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifiers := notify.Fanout{notify.NewLogNotifier(logger)}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL,
			notify.WithQueue(cfg.AMQPQueue),
			notify.WithPublisherLogger(logger))
		if err != nil {
			return err
		}
		notifiers = append(notifiers, publisher)
		background.Add(1)
		go func() {
			defer background.Done()
			_ = publisher.Run(ctx)
		}()
	}

	options := []safari.ServiceOption{
		safari.WithConfig(cfg.Safari),
		safari.WithOperationLogger(logging.NewOperationLogger(logger)),
		safari.WithArchiveNotifier(notifiers),
	}
	if cfg.RedisURL != "" {
		locker, closeRedis, err := openRedisLocker(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeRedis() }()
		options = append(options, safari.WithDateLocker(locker))
	}

	clock := func() time.Time { return time.Now().UTC() }
	service, err := safari.NewService(gormstore.New(gormDB, storeOptions(driver)...), clock, options...)
	if err != nil {
		return fmt.Errorf("safari service init: %w", err)
	}

	scheduler, err := jobs.NewScheduler(service, clock, logger, cfg.Jobs)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := scheduler.Shutdown(); shutdownErr != nil {
			logger.Warn("scheduler shutdown error", zap.Error(shutdownErr))
		}
	}()

	server, err := httpapi.NewServer(service, clock, logger, cfg.HTTP)
	if err != nil {
		return err
	}
	logger.Info("safarid starting",
		zap.String("driver", driver),
		zap.Strings("slots", cfg.Safari.SlotNames()),
		zap.Bool("redis_locks", cfg.RedisURL != ""),
		zap.Bool("amqp_notifications", cfg.AMQPURL != ""))
	return server.Run(ctx)
}

func openRedisLocker(ctx context.Context, redisURL string, logger *zap.Logger) (*lock.RedisLocker, func() error, error) {
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	locker, err := lock.NewRedisLocker(client, lock.WithLogger(logger))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client.Close, nil
}
