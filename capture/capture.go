// Package capture persists raw harvested payloads (OAI-PMH XML, scraped
// HTML) to zstd-compressed files, one file per source per run. The files are
// an audit trail: they let a conversion bug be replayed against the exact
// bytes a repository served, without re-harvesting.
package capture

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/camesdl/harvest/atomicfile"
)

// Dir hands out capture sinks below a base directory, which is created on
// first use.
type Dir struct {
	Base string
}

// Open starts a capture file for one source run. The returned sink is an
// io.WriteCloser suitable for a connector's Capture field; the file only
// appears under Base once Close succeeds.
func (d Dir) Open(source string) (*Sink, error) {
	if err := os.MkdirAll(d.Base, 0755); err != nil {
		return nil, err
	}
	fn := fmt.Sprintf("%s-%s.raw.zst", source, time.Now().UTC().Format("2006-01-02-150405"))
	f, err := atomicfile.New(path.Join(d.Base, fn))
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Abort()
		return nil, err
	}
	return &Sink{f: f, enc: enc}, nil
}

// Sink compresses everything written to it into a single capture file.
type Sink struct {
	f   *atomicfile.File
	enc *zstd.Encoder
}

func (s *Sink) Write(p []byte) (int, error) {
	return s.enc.Write(p)
}

// Close flushes the compressed stream and moves the capture file into place.
func (s *Sink) Close() error {
	if err := s.enc.Close(); err != nil {
		s.f.Abort()
		return err
	}
	return s.f.Close()
}
