package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/camesdl/harvest/schema/oaidc"
)

func oaiBody(token string, ids ...string) string {
	var records string
	for _, id := range ids {
		records += fmt.Sprintf(`
  <record>
    <header><identifier>oai:test:%s</identifier><datestamp>2021-01-01</datestamp></header>
    <metadata>
      <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
        <dc:title>Une thèse de démonstration numéro %s</dc:title>
        <dc:creator>Test, Auteur</dc:creator>
        <dc:type>Thèse</dc:type>
        <dc:date>2021-01-01</dc:date>
      </oai_dc:dc>
    </metadata>
  </record>`, id, id)
	}
	var tok string
	if token != "" {
		tok = fmt.Sprintf("<resumptionToken>%s</resumptionToken>", token)
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2021-02-01T00:00:00Z</responseDate>
  <ListRecords>%s%s</ListRecords>
</OAI-PMH>`, records, tok)
}

func TestOAISinglePage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, oaiBody("", "a", "b"))
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL, From: "2020-01-01"}
	page, err := o.FetchPage(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("want 2 items, got %d", len(page.Items))
	}
	if page.Next != nil {
		t.Fatal("no token means no next cursor")
	}
	if calls != 1 {
		t.Fatalf("want 1 request, got %d", calls)
	}
}

// failingWriter rejects every write, like a capture sink on a full disk.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("no space left on device")
}

func TestOAICaptureFailureDoesNotFailFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, oaiBody("", "a"))
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL, Capture: failingWriter{}}
	page, err := o.FetchPage(context.Background(), nil)
	if err != nil {
		t.Fatalf("a broken capture sink must not break the harvest: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("want 1 item, got %d", len(page.Items))
	}
}

func TestOAIResumptionTokenOnly(t *testing.T) {
	var queries []map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query())
		if r.URL.Query().Get("resumptionToken") == "" {
			fmt.Fprint(w, oaiBody("tok-1", "a"))
			return
		}
		fmt.Fprint(w, oaiBody("", "b"))
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL, From: "2020-01-01", Set: "type:THESE"}
	ctx := context.Background()
	page, err := o.FetchPage(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if page.Next == nil {
		t.Fatal("want a resumption cursor")
	}
	if _, err := o.FetchPage(ctx, page.Next); err != nil {
		t.Fatal(err)
	}
	first, second := queries[0], queries[1]
	if first["metadataPrefix"] == nil || first["from"] == nil || first["set"] == nil {
		t.Errorf("first request misses start parameters: %v", first)
	}
	if got := second["resumptionToken"]; len(got) != 1 || got[0] != "tok-1" {
		t.Errorf("second request token: %v", got)
	}
	for _, forbidden := range []string{"metadataPrefix", "from", "set"} {
		if second[forbidden] != nil {
			t.Errorf("token request must carry only the token, found %s", forbidden)
		}
	}
}

func TestOAIEmptyPayloadTwiceIsExhaustion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, "this is not xml <<<")
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL}
	ctx := context.Background()
	page, err := o.FetchPage(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if page.Next == nil {
		t.Fatal("first empty payload should be retried via cursor")
	}
	page, err = o.FetchPage(ctx, page.Next)
	if err != nil {
		t.Fatal(err)
	}
	if page.Next != nil || len(page.Items) != 0 {
		t.Fatal("second empty payload must terminate the harvest")
	}
	if calls != 2 {
		t.Fatalf("want 2 requests, got %d", calls)
	}
}

func TestOAINoRecordsMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="noRecordsMatch">no matches</error>
</OAI-PMH>`)
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL}
	page, err := o.FetchPage(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 || page.Next != nil {
		t.Fatal("noRecordsMatch is normal exhaustion")
	}
}

func TestOAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL}
	if _, err := o.FetchPage(context.Background(), nil); err == nil {
		t.Fatal("want error on HTTP 500")
	}
}

func TestOAIConvert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, oaiBody("", "a"))
	}))
	defer srv.Close()
	o := &OAI{Client: srv.Client(), Endpoint: srv.URL, ArchiveBase: "https://example.org"}
	page, err := o.FetchPage(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := o.Convert(page.Items[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.SourceNativeID != "a" {
		t.Errorf("native id: got %q", rec.SourceNativeID)
	}
	if rec.SourceURL != "https://example.org/a" {
		t.Errorf("source url: got %q", rec.SourceURL)
	}
	if _, err := o.Convert("bogus"); err == nil {
		t.Error("want type error for foreign item")
	}
	if _, ok := page.Items[0].(*oaidc.Record); !ok {
		t.Errorf("unexpected raw item type %T", page.Items[0])
	}
}
