package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/safari/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safari/internal/jobs"
	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagConfigFile           = "config"
	flagDatabaseURL          = "database-url"
	flagListenAddr           = "listen-addr"
	flagAllowedOrigins       = "allowed-origins"
	flagRequestTimeout       = "request-timeout"
	flagAutoMigrate          = "auto-migrate"
	flagRedisURL             = "redis-url"
	flagAMQPURL              = "amqp-url"
	flagAMQPQueue            = "amqp-queue"
	flagSweepInterval        = "sweep-interval"
	flagReconcileInterval    = "reconcile-interval"
	flagHoldDuration         = "hold-duration"
	flagSlots                = "slots"
	flagSlotLimit            = "slot-limit"
	flagSlotLimits           = "slot-limits"
	flagAdultRateCents       = "adult-rate-cents"
	flagChildRateCents       = "child-rate-cents"
	flagSurchargeBasisPoints = "surcharge-basis-points"
	flagVehicleCapacity      = "vehicle-capacity"
	flagTransactionAttempts  = "tx-attempts"

	envPrefix             = "SAFARI"
	defaultDatabaseURL    = "sqlite:///tmp/safari.db"
	defaultHTTPListenAddr = ":8080"
	defaultAllowedOrigins = "http://localhost:8000"
	defaultAMQPQueue      = "safari.reservation.archived"
	dotEnvFile            = ".env"
)

type runtimeConfig struct {
	DatabaseURL string
	AutoMigrate bool
	RedisURL    string
	AMQPURL     string
	AMQPQueue   string
	ConfigFile  string
	HTTP        httpapi.Config
	Jobs        jobs.Config
	Safari      safari.Config
}

func registerFlags(cmd *cobra.Command) {
	defaults := safari.DefaultConfig()
	flags := cmd.Flags()
	flags.String(flagConfigFile, "", "optional config file (yaml, toml or json)")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "postgres://, mysql:// or sqlite:// connection string")
	flags.String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	flags.String(flagAllowedOrigins, defaultAllowedOrigins, "comma separated CORS origins")
	flags.Duration(flagRequestTimeout, 5*time.Second, "per-request timeout")
	flags.Bool(flagAutoMigrate, true, "create or update tables on start")
	flags.String(flagRedisURL, "", "redis url for cross-process date locks")
	flags.String(flagAMQPURL, "", "RabbitMQ url for archive notifications")
	flags.String(flagAMQPQueue, defaultAMQPQueue, "RabbitMQ queue for archive notifications")
	flags.Duration(flagSweepInterval, jobs.DefaultSweepInterval, "interval of the expired-hold sweep")
	flags.Duration(flagReconcileInterval, jobs.DefaultReconcileInterval, "interval of the reconciliation retry")
	flags.Duration(flagHoldDuration, defaults.HoldDuration, "how long an unconfirmed hold keeps its seats")
	flags.String(flagSlots, strings.Join(safari.DefaultSlotNames, ","), "comma separated slot names")
	flags.Int(flagSlotLimit, safari.DefaultSlotLimit, "seat limit of every slot")
	flags.String(flagSlotLimits, "", "per-slot limits as slot=limit;slot=limit")
	flags.Int64(flagAdultRateCents, int64(defaults.AdultRateCents), "adult fare in cents")
	flags.Int64(flagChildRateCents, int64(defaults.ChildRateCents), "child fare in cents")
	flags.Int64(flagSurchargeBasisPoints, defaults.SurchargeBasisPoints, "surcharge in basis points of the base fare")
	flags.Int(flagVehicleCapacity, defaults.DefaultVehicleCapacity, "capacity of vehicles registered without one")
	flags.Int(flagTransactionAttempts, defaults.MaxTransactionAttempts, "attempts per date transaction on conflict")
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	config := viper.New()
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	if err := config.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if err := config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if configFile := config.GetString(flagConfigFile); configFile != "" {
		config.SetConfigFile(configFile)
		if err := config.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
		cfg.ConfigFile = config.ConfigFileUsed()
	}

	cfg.DatabaseURL = strings.TrimSpace(config.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.AutoMigrate = config.GetBool(flagAutoMigrate)
	cfg.RedisURL = strings.TrimSpace(config.GetString(flagRedisURL))
	cfg.AMQPURL = strings.TrimSpace(config.GetString(flagAMQPURL))
	cfg.AMQPQueue = strings.TrimSpace(config.GetString(flagAMQPQueue))
	cfg.HTTP = httpapi.Config{
		ListenAddr:     config.GetString(flagListenAddr),
		AllowedOrigins: httpapi.ParseAllowedOrigins(config.GetString(flagAllowedOrigins)),
		RequestTimeout: config.GetDuration(flagRequestTimeout),
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	cfg.Jobs = jobs.Config{
		SweepInterval:     config.GetDuration(flagSweepInterval),
		ReconcileInterval: config.GetDuration(flagReconcileInterval),
	}

	slots, err := buildSlots(config.GetString(flagSlots), config.GetInt(flagSlotLimit), config.GetString(flagSlotLimits))
	if err != nil {
		return err
	}
	cfg.Safari = safari.Config{
		Slots:                  slots,
		HoldDuration:           config.GetDuration(flagHoldDuration),
		AdultRateCents:         safari.AmountCents(config.GetInt64(flagAdultRateCents)),
		ChildRateCents:         safari.AmountCents(config.GetInt64(flagChildRateCents)),
		SurchargeBasisPoints:   config.GetInt64(flagSurchargeBasisPoints),
		DefaultVehicleCapacity: config.GetInt(flagVehicleCapacity),
		MaxTransactionAttempts: config.GetInt(flagTransactionAttempts),
	}
	return cfg.Safari.Validate()
}

// buildSlots applies per-slot overrides ("name=limit;name=limit") on top of
// the shared limit. Overrides must name a configured slot.
func buildSlots(rawNames string, sharedLimit int, rawOverrides string) ([]safari.SlotConfig, error) {
	overrides, err := parseSlotLimits(rawOverrides)
	if err != nil {
		return nil, err
	}
	var slots []safari.SlotConfig
	for _, part := range strings.Split(rawNames, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		limit := sharedLimit
		if override, ok := overrides[name]; ok {
			limit = override
			delete(overrides, name)
		}
		slots = append(slots, safari.SlotConfig{Name: name, Limit: limit})
	}
	for name := range overrides {
		return nil, fmt.Errorf("%w: slot limit override for unknown slot %q", safari.ErrInvalidServiceConfig, name)
	}
	return slots, nil
}

func parseSlotLimits(raw string) (map[string]int, error) {
	limits := make(map[string]int)
	for _, part := range strings.Split(raw, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		separator := strings.LastIndex(part, "=")
		if separator < 0 {
			return nil, fmt.Errorf("%w: slot limit %q must look like slot=limit", safari.ErrInvalidServiceConfig, part)
		}
		name := strings.TrimSpace(part[:separator])
		limit, err := strconv.Atoi(strings.TrimSpace(part[separator+1:]))
		if err != nil || name == "" {
			return nil, fmt.Errorf("%w: slot limit %q must look like slot=limit", safari.ErrInvalidServiceConfig, part)
		}
		limits[name] = limit
	}
	return limits, nil
}
