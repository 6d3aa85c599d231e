// Command infobox-crawler scrapes infobox tables and serves filter queries over
// the stored facts.
//
// Subcommands:
//   - serve: HTTP API (scrape, filters, filtered-results, all-values, health, metrics).
//   - scrape: one-shot batch scrape of URLs given as arguments or in a file.
//   - migrate: create the relational schema for the configured driver.
//
// Configuration comes from an optional YAML file (--config) and INFOBOX_*
// environment variables, e.g. INFOBOX_DATABASE_DRIVER=postgres and
// INFOBOX_DATABASE_DSN=postgres://... .
package main

import (
	"github.com/JakeFAU/infobox-crawler/cmd"
)

func main() {
	cmd.Execute()
}
