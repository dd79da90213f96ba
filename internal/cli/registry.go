package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jweetan/newsvet/internal/match"
	"github.com/jweetan/newsvet/internal/model"
	"github.com/jweetan/newsvet/internal/registry"
)

var registryPath string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the listing registry",
}

var registryCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Check whether a company name resolves to a listed entity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if registryPath != "" {
			cfg.Registry.Path = registryPath
		}
		store, err := registry.Open(cfg.Registry.Path)
		if err != nil {
			return err
		}
		engine := match.NewEngine(store, cfg.Match)

		name := strings.Join(args, " ")
		result := engine.Match(name, "")
		switch result.Verdict {
		case model.VerdictAccepted:
			fmt.Printf("%s: listed as %s (%s), confidence %.2f\n",
				name, result.Entry.Name, result.Entry.ID, result.Confidence)
		case model.VerdictAmbiguous:
			fmt.Printf("%s: ambiguous, confidence %.2f; needs review\n", name, result.Confidence)
		default:
			fmt.Printf("%s: not listed (best confidence %.2f)\n", name, result.Confidence)
		}
		return nil
	},
}

var registryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if registryPath != "" {
			cfg.Registry.Path = registryPath
		}
		store, err := registry.Open(cfg.Registry.Path)
		if err != nil {
			return err
		}
		fmt.Printf("%d listed entities loaded from %s\n", store.Len(), cfg.Registry.Path)
		return nil
	},
}

func init() {
	registryCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "registry JSONL file")
	registryCmd.AddCommand(registryCheckCmd)
	registryCmd.AddCommand(registryStatsCmd)
}
