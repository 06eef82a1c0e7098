package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chenzhangda16/logimport/internal/logimport/app"
	"github.com/chenzhangda16/logimport/internal/logimport/config"
	"github.com/chenzhangda16/logimport/pkg/obs"
)

const example = `  logimport --from_dir /data/logs --bootstrap k1:9092,k2:9092 \
    --topic app.events --max_record_per_second 5000

  LOGIMPORT_BOOTSTRAP=k1:9092 logimport --config import.toml --max_record_per_second unlimited`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logimport",
		Short: "Send matching lines from a directory of log files to a broker topic",
		Long: `logimport scans every file in --from_dir once, keeps the lines that contain
both --source_token and --event_token (case-insensitive), prints them and
publishes them to --topic at no more than --max_record_per_second records.`,
		Example:       example,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(os.Stdout)
	config.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(viper.New(), cmd.Flags())
		if err != nil {
			var cerr *config.Error
			if errors.As(err, &cerr) {
				fmt.Fprintf(cmd.OutOrStdout(), "%v\n\n", cerr)
				return cmd.Usage()
			}
			return err
		}

		if _, err := obs.Init(obs.Options{
			Service: "logimport",
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n\n", err)
			return cmd.Usage()
		}

		_, err = app.New(cfg).Run(cmd.Context())
		return err
	}
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("import failed")
		cancel()
		os.Exit(1)
	}
}
