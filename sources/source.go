// Package sources implements the connectors that fetch raw items from
// external thesis repositories. Each connector knows how to page through its
// source and how to hand raw items to the convert package; it never talks to
// the record store and never assigns record ids.
package sources

import (
	"context"
	"net/http"

	"github.com/camesdl/harvest/schema/thesis"
)

// Doer abstracts https://pkg.go.dev/net/http#Client.Do.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Page is one fetched batch of raw items. Next is the opaque resumption
// cursor to pass to the following FetchPage call; nil means the source is
// exhausted.
type Page struct {
	Items []any
	Next  any
}

// Source is the capability both connectors implement. FetchPage performs
// network I/O and is stateless with respect to the connector except for the
// injected cursor; Convert is a pure mapping and returns a convert.Skip
// error for items that do not look like a thesis.
type Source interface {
	Name() thesis.SourceRepo
	FetchPage(ctx context.Context, cursor any) (*Page, error)
	Convert(item any) (*thesis.Thesis, error)
}
