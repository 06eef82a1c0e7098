package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chenzhangda16/logimport/internal/logimport/filter"
	"github.com/chenzhangda16/logimport/internal/logimport/loggen"
	"github.com/chenzhangda16/logimport/pkg/obs"
	"github.com/chenzhangda16/logimport/pkg/rng"
)

func main() {
	var (
		cfg  loggen.Config
		det  bool
		seed int64
	)
	cmd := &cobra.Command{
		Use:          "loggen",
		Short:        "Write synthetic collector logs for trying out logimport",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := obs.Init(obs.Options{Service: "loggen"}); err != nil {
				return err
			}
			mode := rng.Real
			if det {
				mode = rng.Deterministic
			}
			res, err := loggen.Generate(cfg, rng.New(mode, seed))
			if err != nil {
				return err
			}
			log.Info().Int("files", len(res.Files)).Int("lines", res.Lines).Int("hits", res.Hits).Str("dir", cfg.Dir).Msg("logs generated")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.Dir, "dir", "./data/logs", "output directory")
	fs.IntVar(&cfg.Files, "files", 4, "number of files")
	fs.IntVar(&cfg.LinesPerFile, "lines", 10_000, "lines per file")
	fs.Float64Var(&cfg.HitRatio, "hit_ratio", 0.2, "share of lines carrying both tokens")
	fs.StringVar(&cfg.SourceToken, "source_token", filter.DefaultSourceToken, "source token written into hits")
	fs.StringVar(&cfg.EventToken, "event_token", filter.DefaultEventToken, "event token written into hits")
	fs.BoolVar(&cfg.Gzip, "gzip", false, "gzip each file")
	fs.BoolVar(&det, "det", false, "reproducible output for a given --seed")
	fs.Int64Var(&seed, "seed", 1, "seed for --det")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
