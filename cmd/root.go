package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/config"
)

// version is reported by the health endpoint.
const version = "2.0.0"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "indflow",
	Short: "ConLicitação bulletin monitor for industrial instrumentation",
	Long:  "Walks ConLicitação bulletins, triages notices against the IndFlow catalog via tiered Claude models, downloads and analyzes editais, reports opportunities over WhatsApp.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
