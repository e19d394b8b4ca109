package commands

import (
	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/history"
	"github.com/cagmero/ARGUS/internal/metrics"
	"github.com/cagmero/ARGUS/internal/server"
)

var flagAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP",
		Long: `Serves POST /api/v1/scan, GET /api/v1/history, GET /metrics (Prometheus)
and GET /healthz. Each scan request starts from the loaded configuration. It
may send files inline or scan paths below the configured target_paths, and
may override any key except analyzer_settings, rules_dir, history_db and
output_file.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "Record every scan in this SQLite history database")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	path := flagConfig
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("history-db") {
		cfg.HistoryDB = flagHistoryDB
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithHistory(store))
	}

	ctx, cancel := contextWithInterrupt(cmd.Context())
	defer cancel()
	return server.New(cfg, metrics.New(nil), opts...).ListenAndServe(ctx, flagAddr)
}
