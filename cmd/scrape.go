// File: cmd/scrape.go
package cmd

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/orchestrator"
)

func newScrapeCmd(a *app) *cobra.Command {
	var (
		keyword string
		pages   int
	)

	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs a single scrape and prints the articles as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(keyword) == "" {
				return errors.New("--keyword must not be empty")
			}
			if pages == 0 {
				pages = a.cfg.Harvest.DefaultPages
			}
			if pages < 1 || pages > a.cfg.Harvest.MaxPages {
				return fmt.Errorf("--pages must be between 1 and %d", a.cfg.Harvest.MaxPages)
			}

			orch, shutdown, err := a.newOrchestrator()
			if err != nil {
				return err
			}
			defer a.shutdown(ctx, shutdown)

			res, runErr := orch.Run(ctx, keyword, pages)
			if runErr != nil && !errors.Is(runErr, orchestrator.ErrHarvestFailed) {
				return runErr
			}

			// A partial harvest is still printed before the error is reported.
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Articles); err != nil {
				return fmt.Errorf("writing articles: %w", err)
			}
			if res.FollowUpTerm != "" {
				a.logger.Info("Follow-up search issued.", zap.String("term", res.FollowUpTerm))
			}
			return runErr
		},
	}

	scrapeCmd.Flags().StringVarP(&keyword, "keyword", "k", "", "search keyword")
	scrapeCmd.Flags().IntVarP(&pages, "pages", "p", 0, "number of result pages to harvest (default harvest.default_pages)")
	_ = scrapeCmd.MarkFlagRequired("keyword")
	return scrapeCmd
}
