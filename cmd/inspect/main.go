// Command inspect replays one question through the retrieval pipeline and writes a
// per-stage plain-text report. It exits non-zero only when the pipeline cannot start.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:   "inspect [question]",
	Short: "Trace a question through retrieval, fusion and reranking",
	Long: `inspect runs one question through every pipeline stage with relaxed limits and
writes the candidates of each stage, with their scores and provenance, to a plain-text
report. Use --match or --node-id to locate a passage you expected to see.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := optionsFromViper()
		if len(args) == 1 {
			opts.Question = args[0]
		}

		cfg := config.Load()
		if routing := viper.GetString("routing"); routing != "" {
			cfg.RoutingPath = routing
		}
		if opts.ReportPath == "" {
			opts.ReportPath = cfg.InspectReportPath
		}

		logger := logging.NewJSONLoggerTo(os.Stderr, "inspect", viper.GetString("log-level"))
		path, err := run(cmd.Context(), cfg, opts, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "report written to", path)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.String("question", "", "question to inspect (or pass it as the first argument)")
	flags.String("match", "", "case-insensitive substring to locate in candidate text or file name")
	flags.String("node-id", "", "node id to locate across stages")
	flags.Int("max-candidates", 50, "candidates kept per stage")
	flags.Bool("full-text", false, "print full passage text instead of a preview")
	flags.Bool("skip-reranker", false, "do not run the cross-encoder stage")
	flags.String("report", "", "report path (default INSPECT_REPORT_PATH)")
	flags.String("routing", "", "routing file (default ROUTING_CONFIG_PATH)")
	flags.String("log-level", "warn", "log level")
	flags.String("config", "", "optional yaml file with flag defaults")

	_ = viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "config file:", err)
		}
	}
	viper.SetEnvPrefix("RFP")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
}

func optionsFromViper() inspectOptions {
	return inspectOptions{
		Question:      viper.GetString("question"),
		Match:         viper.GetString("match"),
		NodeID:        viper.GetString("node-id"),
		MaxCandidates: viper.GetInt("max-candidates"),
		FullText:      viper.GetBool("full-text"),
		SkipReranker:  viper.GetBool("skip-reranker"),
		ReportPath:    viper.GetString("report"),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
