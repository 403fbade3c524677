package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/pipeline"
)

var (
	processBulletin    int
	processBulletinURL string
	processSubject     string
	processSkipDocs    bool
	processNoNotify    bool
	processStore       string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one bulletin end to end and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if processStore != "" {
			cfg.Store.Driver = processStore
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Pipeline.Run(ctx, pipeline.Request{
			BulletinNumber: processBulletin,
			BulletinURL:    processBulletinURL,
			EmailSubject:   processSubject,
			DownloadDocs:   !processSkipDocs,
			Notify:         !processNoNotify,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}

		if !result.Success {
			return eris.New("process: run failed")
		}
		zap.L().Info("process: bulletin complete",
			zap.Int("bulletin", result.Bulletin),
			zap.Int("notices", result.TotalNotices),
			zap.Int("persisted", result.Persisted),
		)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processBulletin, "bulletin", 0, "bulletin number to process (0 opens the newest)")
	processCmd.Flags().StringVar(&processBulletinURL, "bulletin-url", "", "direct bulletin URL")
	processCmd.Flags().StringVar(&processSubject, "subject", "", "notification e-mail subject to take the bulletin number from")
	processCmd.Flags().BoolVar(&processSkipDocs, "skip-downloads", false, "triage only, skip document downloads and deep analysis")
	processCmd.Flags().BoolVar(&processNoNotify, "no-notify", false, "skip the WhatsApp report")
	processCmd.Flags().StringVar(&processStore, "store", "", "override the store driver (sqlite or postgres)")
	rootCmd.AddCommand(processCmd)
}
