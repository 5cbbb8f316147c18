package config

import "time"

// Config for the harvest tools, populated from flags in each cmd.
type Config struct {
	// DataDir is the generic data dir for all harvest tools.
	DataDir string
	// DatabasePath is the sqlite catalog file, by default below DataDir.
	DatabasePath string
	// CaptureDir receives compressed raw-page capture files, empty
	// disables capture.
	CaptureDir string

	// OAIEndpoint for the OAI-PMH archive.
	OAIEndpoint string
	// OAIFrom restricts the harvest to records changed since this date
	// (YYYY-MM-DD), empty means everything.
	OAIFrom string
	// OAISet optionally restricts the harvest to one OAI set.
	OAISet string
	// ArchiveBase builds record landing URLs when the metadata has none.
	ArchiveBase string

	// GreenstoneURL is the digital-library base URL for the scraper.
	GreenstoneURL string
	// GreenstoneQuery is the library search query.
	GreenstoneQuery string

	MaxPerSource int
	PageSize     int
	MaxPages     int
	JobRetention int

	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond throttles each connector against its upstream.
	RequestsPerSecond float64
}
