package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/server"
)

// newScrapeCmd scrapes URLs given as arguments or listed one per line in --file.
func newScrapeCmd() *cobra.Command {
	var urlFile string

	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Scrapes a batch of URLs once and prints a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			urls := append([]string(nil), args...)
			if urlFile != "" {
				fromFile, err := readURLFile(urlFile)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given")
			}

			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Close()

			summary, err := app.Scraper().ScrapeAndPersist(cmd.Context(), urls)
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			rt.logger.Info("scrape command finished", zap.Int("persisted", summary.Persisted))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&urlFile, "file", "", "file with one URL per line")
	return cmd
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}
