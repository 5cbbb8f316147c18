// Package harvest collects thesis metadata from heterogeneous external
// repositories, normalizes it into a single canonical record and keeps an
// auditable history of import runs.
package harvest

const (
	AppName = "camesdl"
	Version = "0.3.1"
)
