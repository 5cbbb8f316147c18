// harvest-run triggers a single import or maintenance run and prints the
// resulting job stats as JSON. It shares the database, and therefore the job
// history, with harvestd.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/adrg/xdg"
	"github.com/segmentio/encoding/json"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/camesdl/harvest"
	"github.com/camesdl/harvest/capture"
	"github.com/camesdl/harvest/config"
	"github.com/camesdl/harvest/importer"
	"github.com/camesdl/harvest/scheduler"
	"github.com/camesdl/harvest/schema/thesis"
	"github.com/camesdl/harvest/sources"
	"github.com/camesdl/harvest/store"
)

var defaultDataDir = path.Join(xdg.DataHome, harvest.AppName)

var (
	dataDir      = flag.String("d", defaultDataDir, "data directory for database and captures")
	dbPath       = flag.String("db", "", "sqlite database path (default: <data-dir>/catalog.db)")
	kind         = flag.String("k", string(thesis.JobFullImport), "run kind: full-import or maintenance")
	oaiEndpoint  = flag.String("oai-endpoint", "https://hal.science/oai/hal", "OAI-PMH endpoint URL")
	oaiFrom      = flag.String("oai-from", "", "harvest records changed since this date (YYYY-MM-DD)")
	oaiSet       = flag.String("oai-set", "", "optional OAI set restriction")
	archiveBase  = flag.String("archive-base", "https://hal.science", "landing page prefix for records without URLs")
	libraryURL   = flag.String("library-url", "https://greenstone.lecames.org/cgi-bin/library", "Greenstone library base URL")
	libraryQuery = flag.String("library-query", sources.DefaultQuery, "Greenstone search query")
	captureDir   = flag.String("capture-dir", "", "write compressed raw pages here, empty disables capture")
	maxPerSource = flag.Int("max-per-source", 0, "record cap per source, 0 for unbounded")
	jobRetention = flag.Int("job-retention", scheduler.DefaultJobRetention, "import jobs to keep in history")
	maxRetries   = flag.Int("r", 3, "max retries per HTTP request")
	timeout      = flag.Duration("T", 30*time.Second, "HTTP request timeout")
	rps          = flag.Float64("rate", 1.0, "requests per second against each upstream")
	verbose      = flag.Bool("verbose", false, "debug logging")
	showVersion  = flag.Bool("version", false, "show version")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(harvest.Version)
		os.Exit(0)
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	cfg := &config.Config{
		DataDir:           *dataDir,
		DatabasePath:      *dbPath,
		CaptureDir:        *captureDir,
		OAIEndpoint:       *oaiEndpoint,
		OAIFrom:           *oaiFrom,
		OAISet:            *oaiSet,
		ArchiveBase:       *archiveBase,
		GreenstoneURL:     *libraryURL,
		GreenstoneQuery:   *libraryQuery,
		MaxPerSource:      *maxPerSource,
		JobRetention:      *jobRetention,
		Timeout:           *timeout,
		MaxRetries:        *maxRetries,
		RequestsPerSecond: *rps,
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal(err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = path.Join(cfg.DataDir, "catalog.db")
	}
	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = cfg.MaxRetries
	client.RetryOnHTTP429 = true
	client.Timeout = cfg.Timeout

	oai := &sources.OAI{
		Client:      client,
		Endpoint:    cfg.OAIEndpoint,
		From:        cfg.OAIFrom,
		Set:         cfg.OAISet,
		ArchiveBase: cfg.ArchiveBase,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
	greenstone := &sources.Greenstone{
		Client:  client,
		BaseURL: cfg.GreenstoneURL,
		Query:   cfg.GreenstoneQuery,
		Limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
	if cfg.CaptureDir != "" {
		dir := capture.Dir{Base: cfg.CaptureDir}
		for _, w := range []struct {
			name string
			sink *io.Writer
		}{
			{string(oai.Name()), &oai.Capture},
			{string(greenstone.Name()), &greenstone.Capture},
		} {
			sink, err := dir.Open(w.name)
			if err != nil {
				log.Fatal(err)
			}
			defer sink.Close()
			*w.sink = sink
		}
	}

	sched := scheduler.New(s, importer.New(oai, s), importer.New(greenstone, s))
	sched.JobRetention = cfg.JobRetention
	ctx := context.Background()

	var stats thesis.JobStats
	switch thesis.JobKind(*kind) {
	case thesis.JobFullImport:
		stats, err = sched.RunFullImport(ctx, cfg.MaxPerSource)
	case thesis.JobMaintenance:
		stats, err = sched.RunMaintenance(ctx)
	default:
		log.Fatalf("unknown run kind: %s", *kind)
	}
	if err != nil {
		log.WithError(err).Error("run failed")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		log.Fatal(err)
	}
}
