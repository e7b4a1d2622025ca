/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	minGracePeriod = time.Second
	maxGracePeriod = 10 * time.Minute
)

type Config struct {
	actionBurst    int
	actionRate     float64
	bind           string
	gracePeriod    time.Duration
	maxPlayers     int
	maxRooms       int
	maxSpectators  int
	port           int
	prefix         string
	profile        bool
	redisURL       string
	sessionTimeout time.Duration
	snapshotTTL    time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger zerolog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gracePeriod < minGracePeriod || c.gracePeriod > maxGracePeriod {
		return fmt.Errorf("invalid grace period (must be between %s and %s): %s", minGracePeriod, maxGracePeriod, c.gracePeriod)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	if c.maxRooms < 1 || c.maxPlayers < 1 || c.maxSpectators < 1 {
		return errors.New("--max-rooms, --max-players and --max-spectators must be positive")
	}
	if c.actionRate < 0 || c.actionBurst < 0 {
		return errors.New("--action-rate and --action-burst must not be negative")
	}
	if c.redisURL != "" {
		if _, err := redis.ParseURL(c.redisURL); err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if c.snapshotTTL <= 0 {
			return fmt.Errorf("invalid snapshot ttl (must be positive): %s", c.snapshotTTL)
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partyhost",
		Short:         "Hosts real-time party game rooms over WebSockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			cfg.logger = newLogger(cfg, cmd.ErrOrStderr())
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVar(&cfg.actionBurst, "action-burst", 40, "actions a participant may send in a burst (env: PARTYHOST_ACTION_BURST)")
	fs.Float64Var(&cfg.actionRate, "action-rate", 20, "sustained actions per second per participant, 0 disables (env: PARTYHOST_ACTION_RATE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYHOST_BIND)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 45*time.Second, "time disconnected players and empty rooms are kept (env: PARTYHOST_GRACE_PERIOD)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 16, "players allowed per room (env: PARTYHOST_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", 1000, "live rooms allowed per game (env: PARTYHOST_MAX_ROOMS)")
	fs.IntVar(&cfg.maxSpectators, "max-spectators", 32, "spectators allowed per room (env: PARTYHOST_MAX_SPECTATORS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYHOST_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYHOST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYHOST_PROFILE)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis url to write room snapshots to, empty disables (env: PARTYHOST_REDIS_URL)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended, 0 disables (env: PARTYHOST_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.snapshotTTL, "snapshot-ttl", time.Hour, "expiry of room snapshots in redis (env: PARTYHOST_SNAPSHOT_TTL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYHOST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYHOST_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYHOST_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYHOST_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyhost v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
