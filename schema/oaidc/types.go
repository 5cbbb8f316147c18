// Package oaidc mirrors the OAI-PMH ListRecords envelope with Dublin Core
// payloads, as served by HAL-style endpoints.
package oaidc

import (
	"encoding/xml"
	"strings"
)

// Response is the outer OAI-PMH envelope for a ListRecords request.
type Response struct {
	XMLName      xml.Name `xml:"OAI-PMH"`
	ResponseDate string   `xml:"responseDate"`
	Error        struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"error"`
	ListRecords struct {
		Records         []Record `xml:"record"`
		ResumptionToken struct {
			Text             string `xml:",chardata"`
			CompleteListSize string `xml:"completeListSize,attr"`
			Cursor           string `xml:"cursor,attr"`
		} `xml:"resumptionToken"`
	} `xml:"ListRecords"`
}

// Token returns the resumption token, empty when the list is complete.
func (r *Response) Token() string {
	return strings.TrimSpace(r.ListRecords.ResumptionToken.Text)
}

// Record is one OAI record with header and oai_dc metadata.
type Record struct {
	Header struct {
		Status     string   `xml:"status,attr"`
		Identifier string   `xml:"identifier"` // oai:hal.science:tel-0123...
		Datestamp  string   `xml:"datestamp"`
		SetSpec    []string `xml:"setSpec"`
	} `xml:"header"`
	Metadata struct {
		Dc Dc `xml:"dc"`
	} `xml:"metadata"`
}

// Deleted reports whether the upstream record carries a deleted status.
func (r *Record) Deleted() bool {
	return r.Header.Status == "deleted"
}

// Dc holds the Dublin Core fields we care about. Repeatable elements are
// slices; endpoints disagree on cardinality, so we keep everything repeated
// and pick the first value during conversion.
type Dc struct {
	Title       []string `xml:"title"`
	Creator     []string `xml:"creator"`
	Contributor []string `xml:"contributor"`
	Subject     []string `xml:"subject"`
	Description []string `xml:"description"`
	Date        []string `xml:"date"`
	Type        []string `xml:"type"`
	Identifier  []string `xml:"identifier"`
	Language    []string `xml:"language"`
	Publisher   []string `xml:"publisher"`
	Rights      []string `xml:"rights"`
}

// URL returns the first http identifier, if any.
func (dc *Dc) URL() string {
	for _, id := range dc.Identifier {
		if strings.HasPrefix(id, "http") {
			return id
		}
	}
	return ""
}
