// harvestd runs the scheduled ingestion pipeline: a weekly full import from
// all configured repositories and a daily catalog maintenance pass. Runs can
// also be triggered ad hoc with harvest-run against the same database.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/camesdl/harvest"
	"github.com/camesdl/harvest/config"
	"github.com/camesdl/harvest/importer"
	"github.com/camesdl/harvest/scheduler"
	"github.com/camesdl/harvest/sources"
	"github.com/camesdl/harvest/store"
)

var defaultDataDir = path.Join(xdg.DataHome, harvest.AppName)

var (
	dataDir      = flag.String("d", defaultDataDir, "data directory for database and captures")
	dbPath       = flag.String("db", "", "sqlite database path (default: <data-dir>/catalog.db)")
	oaiEndpoint  = flag.String("oai-endpoint", "https://hal.science/oai/hal", "OAI-PMH endpoint URL")
	oaiFrom      = flag.String("oai-from", "", "harvest records changed since this date (YYYY-MM-DD)")
	oaiSet       = flag.String("oai-set", "", "optional OAI set restriction")
	archiveBase  = flag.String("archive-base", "https://hal.science", "landing page prefix for records without URLs")
	libraryURL   = flag.String("library-url", "https://greenstone.lecames.org/cgi-bin/library", "Greenstone library base URL")
	libraryQuery = flag.String("library-query", sources.DefaultQuery, "Greenstone search query")
	maxPerSource = flag.Int("max-per-source", scheduler.DefaultMaxPerSource, "record cap per source per scheduled run, 0 for unbounded")
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

	sched := scheduler.New(s, importer.New(oai, s), importer.New(greenstone, s))
	sched.MaxPerSource = cfg.MaxPerSource
	sched.JobRetention = cfg.JobRetention
	sched.Start()
	log.WithFields(log.Fields{
		"db":      cfg.DatabasePath,
		"version": harvest.Version,
	}).Info("harvestd up")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	sched.Stop()
	log.Info("harvestd down")
}
