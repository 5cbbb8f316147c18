// Package greenstone holds the raw shape of one search result scraped from
// a Greenstone digital library page. The HTML has no stable structure, so a
// result is little more than the text of the block it was found in plus the
// document link.
package greenstone

// Result is one scraped search hit, before any heuristic field extraction.
type Result struct {
	Collection string // collection id from the c= query parameter
	DocID      string // document id from the d= query parameter
	URL        string // absolute document URL
	Title      string // text of the first heading-like element or the anchor
	Text       string // full text of the result block
}
