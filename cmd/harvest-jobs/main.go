// harvest-jobs prints the import job history and catalog counts as JSON,
// for inspection and dashboards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/adrg/xdg"
	"github.com/segmentio/encoding/json"
	log "github.com/sirupsen/logrus"

	"github.com/camesdl/harvest"
	"github.com/camesdl/harvest/store"
)

var defaultDataDir = path.Join(xdg.DataHome, harvest.AppName)

var (
	dataDir     = flag.String("d", defaultDataDir, "data directory for database and captures")
	dbPath      = flag.String("db", "", "sqlite database path (default: <data-dir>/catalog.db)")
	limit       = flag.Int("n", 20, "jobs to show, 0 for all")
	showStats   = flag.Bool("stats", false, "show catalog counts instead of job history")
	showVersion = flag.Bool("version", false, "show version")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(harvest.Version)
		os.Exit(0)
	}
	if *dbPath == "" {
		*dbPath = path.Join(*dataDir, "catalog.db")
	}
	s, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	enc := json.NewEncoder(os.Stdout)
	if *showStats {
		enc.SetIndent("", "  ")
		total, err := s.CountTheses(ctx, store.Filter{})
		if err != nil {
			log.Fatal(err)
		}
		bySource, err := s.CountBySource(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if err := enc.Encode(map[string]any{
			"total":     total,
			"by_source": bySource,
		}); err != nil {
			log.Fatal(err)
		}
		return
	}
	jobs, err := s.ListJobs(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}
	for _, job := range jobs {
		if err := enc.Encode(job); err != nil {
			log.Fatal(err)
		}
	}
}
