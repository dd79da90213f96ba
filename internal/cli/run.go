package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jweetan/newsvet/internal/pipeline"
)

var (
	runRegistryPath string
	runIndexPath    string
	runReportPath   string
	runJSONPath     string
	runProvider     string
	runModel        string
	runWorkers      int
)

var runCmd = &cobra.Command{
	Use:   "run <scraped.jsonl>",
	Short: "Verify and index a batch of scraped articles",
	Long: `Reads scraped articles from a JSONL file, extracts company mentions,
verifies them against the listing registry, indexes accepted articles,
and writes a Market Watch digest.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVar(&runRegistryPath, "registry", "", "registry JSONL file")
	runCmd.Flags().StringVar(&runIndexPath, "index", "", "index database path")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "write markdown digest to file")
	runCmd.Flags().StringVar(&runJSONPath, "json", "", "write JSON results to file")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "LLM provider (openai, anthropic, ollama)")
	runCmd.Flags().StringVar(&runModel, "model", "", "LLM model override")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent verification workers")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if runRegistryPath != "" {
		cfg.Registry.Path = runRegistryPath
	}
	if runIndexPath != "" {
		cfg.Index.Path = runIndexPath
	}
	if runReportPath != "" {
		cfg.Output.ReportPath = runReportPath
	}
	if runJSONPath != "" {
		cfg.Output.JSONPath = runJSONPath
	}
	if runProvider != "" {
		cfg.LLM.Provider = runProvider
		cfg.LLM.APIKey = apiKeyFor(runProvider)
	}
	if runModel != "" {
		cfg.LLM.Model = runModel
	}
	if runWorkers > 0 {
		cfg.Concurrency.VerifyWorkers = runWorkers
	}

	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	log := buildLogger(cfg)
	defer log.Sync()

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := p.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if cfg.Output.JSONPath != "" {
		if err := pipeline.RenderJSON(result, cfg.Output.JSONPath); err != nil {
			return err
		}
	}
	if cfg.Output.ReportPath != "" {
		if err := pipeline.RenderMarkdown(result, cfg.Output.ReportPath); err != nil {
			return err
		}
	}

	pipeline.PrintSummary(result, os.Stdout)
	return nil
}
