// Package config turns flags, LOGIMPORT_* environment variables and an
// optional config file into one immutable Config for a run.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chenzhangda16/logimport/internal/logimport/filter"
	"github.com/chenzhangda16/logimport/internal/logimport/publisher"
	"github.com/chenzhangda16/logimport/internal/logimport/scanner"
	"github.com/chenzhangda16/logimport/internal/logimport/throttle"
)

const EnvPrefix = "LOGIMPORT"

// Flag names use underscores, matching the existing job scripts.
const (
	FlagConfig             = "config"
	FlagFromDir            = "from_dir"
	FlagBootstrap          = "bootstrap"
	FlagTopic              = "topic"
	FlagMaxRecordPerSecond = "max_record_per_second"
	FlagSourceToken        = "source_token"
	FlagEventToken         = "event_token"
	FlagInclude            = "include"
	FlagWorkers            = "workers"
	FlagDriver             = "driver"
	FlagClientID           = "client_id"
	FlagDryRun             = "dry_run"
	FlagQuiet              = "quiet"
	FlagMaxLineBytes       = "max_line_bytes"
	FlagPushGateway        = "push_gateway"
	FlagLogLevel           = "log_level"
	FlagLogFormat          = "log_format"
)

const unlimitedWord = "unlimited"

var ErrConfig = errors.New("invalid configuration")

// Error is a missing or malformed option. It is not a failure of the run:
// callers print usage and exit cleanly.
type Error struct {
	Option string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("--%s %s", e.Option, e.Reason) }

func (e *Error) Unwrap() error { return ErrConfig }

type Config struct {
	SourceDir string
	Brokers   []string
	Topic     string

	// MaxRecordsPerSecond is throttle.Unlimited when no ceiling applies.
	MaxRecordsPerSecond int64

	SourceToken  string
	EventToken   string
	Include      string
	Workers      int
	MaxLineBytes int

	Driver   string
	ClientID string
	DryRun   bool
	Quiet    bool

	PushGateway string
	LogLevel    string
	LogFormat   string
}

// BindFlags registers every option on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "optional config file (toml, yaml or json)")
	fs.String(FlagFromDir, "", "local dir to import")
	fs.String(FlagBootstrap, "", "broker addresses, comma separated")
	fs.String(FlagTopic, "", "topic to send to")
	fs.String(FlagMaxRecordPerSecond, "", "send rate ceiling in records per second, or -1/unlimited")
	fs.String(FlagSourceToken, filter.DefaultSourceToken, "source token a line must contain (case-insensitive)")
	fs.String(FlagEventToken, filter.DefaultEventToken, "event-type token a line must contain (case-insensitive)")
	fs.String(FlagInclude, scanner.DefaultInclude, "glob selecting file names in --from_dir")
	fs.Int(FlagWorkers, 0, "files processed concurrently (0 = GOMAXPROCS)")
	fs.Int(FlagMaxLineBytes, scanner.DefaultMaxLineBytes, "longest accepted line in bytes")
	fs.String(FlagDriver, publisher.DriverKafka, "broker client: "+strings.Join(publisher.Drivers(), ", "))
	fs.String(FlagClientID, "logimport", "client id announced to the broker")
	fs.Bool(FlagDryRun, false, "print qualifying lines without publishing")
	fs.Bool(FlagQuiet, false, "do not print qualifying lines")
	fs.String(FlagPushGateway, "", "Prometheus Pushgateway URL for run metrics")
	fs.String(FlagLogLevel, "info", "log level: debug, info, warn, error")
	fs.String(FlagLogFormat, "console", "log format: console or json")
}

// Load reads fs (already parsed) through v, overlaying the environment and
// the config file named by --config, and validates the result.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Option: FlagConfig, Reason: err.Error()}
		}
	}

	cfg := Config{
		SourceDir:    strings.TrimSpace(v.GetString(FlagFromDir)),
		Brokers:      stringList(v.Get(FlagBootstrap)),
		Topic:        strings.TrimSpace(v.GetString(FlagTopic)),
		SourceToken:  v.GetString(FlagSourceToken),
		EventToken:   v.GetString(FlagEventToken),
		Include:      v.GetString(FlagInclude),
		Workers:      v.GetInt(FlagWorkers),
		MaxLineBytes: v.GetInt(FlagMaxLineBytes),
		Driver:       v.GetString(FlagDriver),
		ClientID:     v.GetString(FlagClientID),
		DryRun:       v.GetBool(FlagDryRun),
		Quiet:        v.GetBool(FlagQuiet),
		PushGateway:  v.GetString(FlagPushGateway),
		LogLevel:     v.GetString(FlagLogLevel),
		LogFormat:    v.GetString(FlagLogFormat),
	}
	if cfg.DryRun {
		cfg.Driver = publisher.DriverDiscard
	}

	rawRate := strings.TrimSpace(v.GetString(FlagMaxRecordPerSecond))
	if rawRate == "" {
		return cfg, &Error{Option: FlagMaxRecordPerSecond, Reason: "is required"}
	}
	rate, err := ParseRate(rawRate)
	if err != nil {
		return cfg, &Error{Option: FlagMaxRecordPerSecond, Reason: err.Error()}
	}
	cfg.MaxRecordsPerSecond = rate

	return cfg, cfg.Validate()
}

// ParseRate accepts a positive integer, -1 or "unlimited".
func ParseRate(s string) (int64, error) {
	if strings.EqualFold(s, unlimitedWord) {
		return throttle.Unlimited, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be a positive integer, -1 or %q", unlimitedWord)
	}
	if n != throttle.Unlimited && n <= 0 {
		return 0, fmt.Errorf("must be a positive integer, -1 or %q, got %d", unlimitedWord, n)
	}
	return n, nil
}

func (c Config) Validate() error {
	switch {
	case c.SourceDir == "":
		return &Error{Option: FlagFromDir, Reason: "is required"}
	case len(c.Brokers) == 0 && c.Driver != publisher.DriverDiscard:
		return &Error{Option: FlagBootstrap, Reason: "is required"}
	case c.Topic == "":
		return &Error{Option: FlagTopic, Reason: "is required"}
	case c.MaxRecordsPerSecond != throttle.Unlimited && c.MaxRecordsPerSecond <= 0:
		return &Error{Option: FlagMaxRecordPerSecond, Reason: "must be positive or unlimited"}
	case c.SourceToken == "":
		return &Error{Option: FlagSourceToken, Reason: "must not be empty"}
	case c.EventToken == "":
		return &Error{Option: FlagEventToken, Reason: "must not be empty"}
	case c.Workers < 0:
		return &Error{Option: FlagWorkers, Reason: "must not be negative"}
	case c.MaxLineBytes < 0:
		return &Error{Option: FlagMaxLineBytes, Reason: "must not be negative"}
	case !slices.Contains(publisher.Drivers(), c.Driver):
		return &Error{Option: FlagDriver, Reason: fmt.Sprintf("must be one of %v", publisher.Drivers())}
	case c.LogFormat != "console" && c.LogFormat != "json":
		return &Error{Option: FlagLogFormat, Reason: "must be console or json"}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &Error{Option: FlagLogLevel, Reason: err.Error()}
	}
	if _, err := scanner.CompileInclude(c.Include); err != nil {
		return &Error{Option: FlagInclude, Reason: "is not a valid glob"}
	}
	return nil
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

// stringList accepts both "a,b" from flags or env and a list from a config file.
func stringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return SplitCSV(x)
	case []string:
		return SplitCSV(strings.Join(x, ","))
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
		return SplitCSV(strings.Join(parts, ","))
	default:
		return SplitCSV(fmt.Sprint(x))
	}
}
