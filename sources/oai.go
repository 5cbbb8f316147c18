package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/camesdl/harvest/convert"
	"github.com/camesdl/harvest/schema/oaidc"
	"github.com/camesdl/harvest/schema/thesis"
)

// maxOAIBody caps how much of a response we are willing to read; OAI pages
// are small, anything beyond this is a misbehaving endpoint.
const maxOAIBody = 16 << 20

// OAI harvests an OAI-PMH endpoint via ListRecords with oai_dc payloads.
type OAI struct {
	Client      Doer
	Endpoint    string        // e.g. https://hal.science/oai/hal
	From        string        // lower-bound date filter, YYYY-MM-DD
	Set         string        // optional setSpec restriction
	ArchiveBase string        // landing page prefix for records without URLs
	Limiter     *rate.Limiter // politeness, one slot per request
	Capture     io.Writer     // optional raw payload sink
}

// oaiCursor carries the resumption token between fetches. The protocol
// requires the token to be the only query parameter besides the verb, so
// nothing else survives a page boundary. emptyStreak counts consecutive
// unparseable or empty payloads; two in a row means exhaustion rather than
// an endless retry loop against a flaky endpoint.
type oaiCursor struct {
	token       string
	emptyStreak int
}

func (o *OAI) Name() thesis.SourceRepo { return thesis.SourceHAL }

// FetchPage issues one ListRecords request. A nil cursor starts a fresh
// harvest with the date filter; afterwards only the resumption token is
// sent.
func (o *OAI) FetchPage(ctx context.Context, cursor any) (*Page, error) {
	var cur oaiCursor
	if cursor != nil {
		c, ok := cursor.(oaiCursor)
		if !ok {
			return nil, fmt.Errorf("oai: unexpected cursor type %T", cursor)
		}
		cur = c
	}
	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vs := url.Values{}
	vs.Set("verb", "ListRecords")
	if cur.token != "" {
		vs.Set("resumptionToken", cur.token)
	} else {
		vs.Set("metadataPrefix", "oai_dc")
		if o.From != "" {
			vs.Set("from", o.From)
		}
		if o.Set != "" {
			vs.Set("set", o.Set)
		}
	}
	link := fmt.Sprintf("%s?%s", o.Endpoint, vs.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oai: fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("oai: HTTP %d while fetching %s", resp.StatusCode, link)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxOAIBody))
	if err != nil {
		return nil, fmt.Errorf("oai: read body: %w", err)
	}
	if o.Capture != nil {
		if _, err := o.Capture.Write(b); err != nil {
			log.WithError(err).Warn("oai: raw capture write failed")
		}
	}
	var payload oaidc.Response
	if err := xml.Unmarshal(b, &payload); err != nil {
		return o.emptyPage(cur, fmt.Sprintf("unparseable payload: %v", err))
	}
	if payload.Error.Code == "noRecordsMatch" {
		return &Page{}, nil
	}
	if payload.Error.Code != "" {
		return nil, fmt.Errorf("oai: protocol error %s: %s", payload.Error.Code, payload.Error.Text)
	}
	records := payload.ListRecords.Records
	if len(records) == 0 {
		return o.emptyPage(cur, "empty record list")
	}
	page := &Page{Items: make([]any, 0, len(records))}
	for i := range records {
		page.Items = append(page.Items, &records[i])
	}
	if token := payload.Token(); token != "" {
		page.Next = oaiCursor{token: token}
	}
	log.WithFields(log.Fields{
		"records": len(records),
		"cursor":  payload.ListRecords.ResumptionToken.Cursor,
		"more":    page.Next != nil,
	}).Debug("oai page fetched")
	return page, nil
}

// emptyPage handles an unparseable or empty response: retry the same token
// once, treat the second miss as end-of-source.
func (o *OAI) emptyPage(cur oaiCursor, reason string) (*Page, error) {
	if cur.emptyStreak+1 >= 2 {
		log.WithField("reason", reason).Warn("oai: second empty payload, treating as exhaustion")
		return &Page{}, nil
	}
	log.WithField("reason", reason).Warn("oai: empty payload, retrying once")
	return &Page{Next: oaiCursor{token: cur.token, emptyStreak: cur.emptyStreak + 1}}, nil
}

func (o *OAI) Convert(item any) (*thesis.Thesis, error) {
	rec, ok := item.(*oaidc.Record)
	if !ok {
		return nil, fmt.Errorf("oai: unexpected item type %T", item)
	}
	return convert.OaiRecordToThesis(rec, o.ArchiveBase)
}
