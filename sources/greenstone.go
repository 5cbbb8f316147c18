package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/camesdl/harvest/convert"
	"github.com/camesdl/harvest/schema/greenstone"
	"github.com/camesdl/harvest/schema/thesis"
)

const (
	// DefaultQuery matches thesis-like documents across collections.
	DefaultQuery = "thesis OR thèse OR dissertation"
	// DefaultPageSize is the fixed number of results requested per page.
	DefaultPageSize = 20
	// DefaultMaxPages bounds pagination per collection; Greenstone markup
	// gives no reliable end-of-results signal.
	DefaultMaxPages = 3
)

var (
	collectionParam = regexp.MustCompile(`c=([^&]+)`)
	documentParam   = regexp.MustCompile(`d=([^&]+)`)
	resultClass     = regexp.MustCompile(`result|item|doc`)
)

// Greenstone scrapes a Greenstone digital library search interface. There
// is no structured API; collections are enumerated from landing page links
// and results are located heuristically in the rendered HTML.
type Greenstone struct {
	Client   Doer
	BaseURL  string // e.g. https://greenstone.lecames.org/cgi-bin/library
	Query    string
	PageSize int
	MaxPages int           // per-collection page cap
	Limiter  *rate.Limiter // politeness between every request
	Capture  io.Writer     // optional raw HTML sink
}

// greenstoneCursor walks (collection, page) pairs.
type greenstoneCursor struct {
	collections []string
	idx         int
	page        int
}

func (g *Greenstone) Name() thesis.SourceRepo { return thesis.SourceGreenstone }

func (g *Greenstone) query() string {
	if g.Query != "" {
		return g.Query
	}
	return DefaultQuery
}

func (g *Greenstone) pageSize() int {
	if g.PageSize > 0 {
		return g.PageSize
	}
	return DefaultPageSize
}

func (g *Greenstone) maxPages() int {
	if g.MaxPages > 0 {
		return g.MaxPages
	}
	return DefaultMaxPages
}

// FetchPage returns one results page. The first call (nil cursor)
// additionally fetches the landing page to enumerate collections; when no
// collection links are found the connector degrades to a single unscoped
// search.
func (g *Greenstone) FetchPage(ctx context.Context, cursor any) (*Page, error) {
	var cur greenstoneCursor
	if cursor == nil {
		collections, err := g.fetchCollections(ctx)
		if err != nil {
			return nil, err
		}
		if len(collections) == 0 {
			collections = []string{""}
		}
		cur = greenstoneCursor{collections: collections}
	} else {
		c, ok := cursor.(greenstoneCursor)
		if !ok {
			return nil, fmt.Errorf("greenstone: unexpected cursor type %T", cursor)
		}
		cur = c
	}
	if cur.idx >= len(cur.collections) {
		return &Page{}, nil
	}
	collection := cur.collections[cur.idx]
	doc, err := g.fetchDocument(ctx, url.Values{
		"a":  []string{"q"},
		"c":  []string{collection},
		"ct": []string{"1"},
		"qt": []string{"1"},
		"q":  []string{g.query()},
		"n":  []string{strconv.Itoa(g.pageSize())},
		"r":  []string{strconv.Itoa(cur.page * g.pageSize())},
		"hs": []string{"1"},
	})
	if err != nil {
		return nil, err
	}
	results := g.parseResults(doc, collection)
	log.WithFields(log.Fields{
		"collection": collection,
		"page":       cur.page,
		"results":    len(results),
	}).Debug("greenstone page fetched")
	page := &Page{Items: make([]any, 0, len(results))}
	for _, r := range results {
		page.Items = append(page.Items, r)
	}
	next := cur
	next.page++
	if len(results) == 0 || next.page >= g.maxPages() {
		next.idx++
		next.page = 0
	}
	if next.idx < len(next.collections) {
		page.Next = next
	}
	return page, nil
}

// fetchCollections scans the landing page for links carrying a collection
// id parameter.
func (g *Greenstone) fetchCollections(ctx context.Context) ([]string, error) {
	doc, err := g.fetchDocument(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("greenstone: landing page: %w", err)
	}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(strings.ToLower(href), "collection") {
			return
		}
		if m := collectionParam.FindStringSubmatch(href); m != nil {
			seen[m[1]] = struct{}{}
		}
	})
	collections := make([]string, 0, len(seen))
	for c := range seen {
		collections = append(collections, c)
	}
	sort.Strings(collections)
	return collections, nil
}

// fetchDocument performs one rate-limited GET and parses the body as HTML.
func (g *Greenstone) fetchDocument(ctx context.Context, vs url.Values) (*goquery.Document, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	link := g.BaseURL
	if len(vs) > 0 {
		link = fmt.Sprintf("%s?%s", g.BaseURL, vs.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("greenstone: fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("greenstone: HTTP %d while fetching %s", resp.StatusCode, link)
	}
	var body io.Reader = resp.Body
	if g.Capture != nil {
		body = io.TeeReader(resp.Body, g.Capture)
	}
	return goquery.NewDocumentFromReader(body)
}

// parseResults locates result blocks on a search page. Primary strategy:
// div/td elements whose class looks result-like. Fallback: anchors linking
// to a document id, for deployments with unadorned markup.
func (g *Greenstone) parseResults(doc *goquery.Document, collection string) []*greenstone.Result {
	blocks := doc.Find("div, td").FilterFunction(func(i int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && resultClass.MatchString(strings.ToLower(class))
	})
	if blocks.Length() == 0 {
		blocks = doc.Find(`a[href*="d="]`)
	}
	var results []*greenstone.Result
	blocks.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if r := g.extractResult(s, collection); r != nil {
			results = append(results, r)
		}
		return len(results) < g.pageSize()
	})
	return results
}

// extractResult pulls the document link, a title candidate and the block
// text out of one result element.
func (g *Greenstone) extractResult(s *goquery.Selection, collection string) *greenstone.Result {
	anchor := s
	if !s.Is("a") {
		anchor = s.Find(`a[href*="d="]`).First()
		if anchor.Length() == 0 {
			return nil
		}
	}
	href, _ := anchor.Attr("href")
	m := documentParam.FindStringSubmatch(href)
	if m == nil {
		return nil
	}
	title := strings.TrimSpace(s.Find("h3, h4, strong, b").First().Text())
	if title == "" {
		title = strings.TrimSpace(anchor.Text())
	}
	return &greenstone.Result{
		Collection: collection,
		DocID:      m[1],
		URL:        g.absoluteURL(href),
		Title:      title,
		Text:       strings.TrimSpace(s.Text()),
	}
}

// absoluteURL resolves a scraped href against the library base URL.
func (g *Greenstone) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(g.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func (g *Greenstone) Convert(item any) (*thesis.Thesis, error) {
	r, ok := item.(*greenstone.Result)
	if !ok {
		return nil, fmt.Errorf("greenstone: unexpected item type %T", item)
	}
	return convert.GreenstoneResultToThesis(r)
}
