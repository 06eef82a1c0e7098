package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/logimport/internal/logimport/filter"
	"github.com/chenzhangda16/logimport/internal/logimport/publisher"
	"github.com/chenzhangda16/logimport/internal/logimport/throttle"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("logimport", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(viper.New(), fs)
}

func TestLoadFromFlags(t *testing.T) {
	cfg, err := load(t,
		"--from_dir", "/data/logs",
		"--bootstrap", "k1:9092, k2:9092,",
		"--topic", "events",
		"--max_record_per_second", "500",
		"--workers", "3",
	)
	require.NoError(t, err)

	assert.Equal(t, "/data/logs", cfg.SourceDir)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "events", cfg.Topic)
	assert.Equal(t, int64(500), cfg.MaxRecordsPerSecond)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, filter.DefaultSourceToken, cfg.SourceToken)
	assert.Equal(t, filter.DefaultEventToken, cfg.EventToken)
	assert.Equal(t, publisher.DriverKafka, cfg.Driver)
	assert.False(t, cfg.DryRun)
}

func TestLoadUnlimited(t *testing.T) {
	for _, raw := range []string{"-1", "unlimited", "UNLIMITED"} {
		cfg, err := load(t,
			"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t",
			"--max_record_per_second="+raw,
		)
		require.NoError(t, err, raw)
		assert.Equal(t, throttle.Unlimited, cfg.MaxRecordsPerSecond, raw)
	}
}

func TestMissingRequiredOptions(t *testing.T) {
	cases := []struct {
		name   string
		args   []string
		option string
	}{
		{"from_dir", []string{"--bootstrap", "k:9092", "--topic", "t", "--max_record_per_second", "10"}, FlagFromDir},
		{"bootstrap", []string{"--from_dir", "/d", "--topic", "t", "--max_record_per_second", "10"}, FlagBootstrap},
		{"topic", []string{"--from_dir", "/d", "--bootstrap", "k:9092", "--max_record_per_second", "10"}, FlagTopic},
		{"rate", []string{"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t"}, FlagMaxRecordPerSecond},
		{"empty bootstrap list", []string{"--from_dir", "/d", "--bootstrap", " , ", "--topic", "t", "--max_record_per_second", "10"}, FlagBootstrap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.args...)
			require.ErrorIs(t, err, ErrConfig)
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.option, cerr.Option)
		})
	}
}

func TestBadRate(t *testing.T) {
	for _, raw := range []string{"0", "-2", "fast", "1.5"} {
		_, err := load(t,
			"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t",
			"--max_record_per_second="+raw,
		)
		require.ErrorIs(t, err, ErrConfig, raw)
	}
}

func TestDryRunNeedsNoBrokers(t *testing.T) {
	cfg, err := load(t,
		"--from_dir", "/d", "--topic", "t", "--max_record_per_second", "10", "--dry_run",
	)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, publisher.DriverDiscard, cfg.Driver)
}

func TestUnknownDriver(t *testing.T) {
	_, err := load(t,
		"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t",
		"--max_record_per_second", "10", "--driver", "carrier-pigeon",
	)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, FlagDriver, cerr.Option)
}

func TestEnvironmentOverlay(t *testing.T) {
	t.Setenv("LOGIMPORT_FROM_DIR", "/env/logs")
	t.Setenv("LOGIMPORT_BOOTSTRAP", "e1:9092,e2:9092")
	t.Setenv("LOGIMPORT_TOPIC", "env-topic")
	t.Setenv("LOGIMPORT_MAX_RECORD_PER_SECOND", "unlimited")

	cfg, err := load(t, "--topic", "flag-topic")
	require.NoError(t, err)
	assert.Equal(t, "/env/logs", cfg.SourceDir)
	assert.Equal(t, []string{"e1:9092", "e2:9092"}, cfg.Brokers)
	assert.Equal(t, "flag-topic", cfg.Topic, "explicit flag wins over env")
	assert.Equal(t, throttle.Unlimited, cfg.MaxRecordsPerSecond)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logimport.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
from_dir = "/file/logs"
bootstrap = ["f1:9092", "f2:9092"]
topic = "file-topic"
max_record_per_second = 2000
driver = "kafka-go"
`), 0o644))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "/file/logs", cfg.SourceDir)
	assert.Equal(t, []string{"f1:9092", "f2:9092"}, cfg.Brokers)
	assert.Equal(t, "file-topic", cfg.Topic)
	assert.Equal(t, int64(2000), cfg.MaxRecordsPerSecond)
	assert.Equal(t, publisher.DriverKafkaGo, cfg.Driver)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "nope.toml"))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, FlagConfig, cerr.Option)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a ,,b, "))
	assert.Empty(t, SplitCSV(""))
}

func TestBadLogLevel(t *testing.T) {
	_, err := load(t,
		"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t",
		"--max_record_per_second", "10", "--log_level", "chatty",
	)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, FlagLogLevel, cerr.Option)
}

func TestBadIncludeGlob(t *testing.T) {
	_, err := load(t,
		"--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t",
		"--max_record_per_second", "10", "--include", "[unclosed",
	)
	require.ErrorIs(t, err, ErrConfig)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, FlagInclude, cerr.Option)
}

func TestWorkersDefaultsToZero(t *testing.T) {
	cfg, err := load(t, "--from_dir", "/d", "--bootstrap", "k:9092", "--topic", "t", "--max_record_per_second", "10")
	require.NoError(t, err)
	assert.Zero(t, cfg.Workers)
}
