package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/jweetan/newsvet/internal/model"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "newsvet",
	Short: "Verify company mentions in scraped news and build a searchable digest",
	Long: `newsvet extracts company mentions from scraped news articles with an LLM,
verifies each mention against the Bursa Malaysia listing registry, and
indexes verified articles for semantic retrieval and grounded chat.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.newsvet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".newsvet"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file over defaults. Flags are applied by
// the individual commands afterwards; the environment supplies only API
// keys and the Ollama base URL.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring config file %s: %v\n", path, err)
			cfg = model.DefaultConfig()
		}
	}

	cfg.LLM.APIKey = apiKeyFor(cfg.LLM.Provider)
	cfg.Embedding.APIKey = apiKeyFor(cfg.Embedding.Provider)
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = base
		}
		if cfg.Embedding.Provider == "ollama" && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = base
		}
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	return cfg
}

func apiKeyFor(provider string) string {
	switch provider {
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "ollama":
		return ""
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// requireAPIKey fails fast before any network work when the selected
// provider needs a key that is not in the environment.
func requireAPIKey(cfg *model.Config) error {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	return nil
}

func buildLogger(cfg *model.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Output.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the newsvet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsvet v0.3.0")
	},
}
