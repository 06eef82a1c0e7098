package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chenzhangda16/logimport/internal/logimport/config"
	"github.com/chenzhangda16/logimport/internal/logimport/tail"
	"github.com/chenzhangda16/logimport/pkg/obs"
)

func main() {
	var (
		cfg       tail.Config
		bootstrap string
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:          "logimport-tail",
		Short:        "Print a topic and report the peak per-second arrival rate on exit",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := obs.Init(obs.Options{Service: "logimport-tail"}); err != nil {
				return err
			}
			cfg.Brokers = config.SplitCSV(bootstrap)
			h := &tail.Handler{Out: cmd.OutOrStdout(), Meter: tail.NewMeter(), Quiet: quiet}
			return tail.Run(cmd.Context(), cfg, h)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&bootstrap, "bootstrap", "localhost:9092", "broker addresses, comma separated")
	fs.StringVar(&cfg.Topic, "topic", "", "topic to read")
	fs.StringVar(&cfg.Group, "group", "logimport-tail", "consumer group")
	fs.StringVar(&cfg.ClientID, "client_id", "logimport-tail", "client id announced to the broker")
	fs.BoolVar(&cfg.FromBeginning, "from_beginning", false, "start at the oldest offset")
	fs.BoolVar(&quiet, "quiet", false, "only report the rate")
	_ = cmd.MarkFlagRequired("topic")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("tail failed")
		cancel()
		os.Exit(1)
	}
}
