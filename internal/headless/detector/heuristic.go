// Package detector decides when a plain HTTP fetch must be retried in a headless browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Promotion reasons returned by Heuristic.Reason.
const (
	ReasonEmptyBody     = "empty_body"
	ReasonSPARoot       = "spa_root"
	ReasonShortScripted = "short_scripted"
	ReasonMissingMarker = "missing_marker"
)

const (
	defaultThreshold = 2048
	// scriptSharePercent is the share of the body made of inline script text
	// above which markup is treated as client-rendered.
	scriptSharePercent = 25
)

// spaRoots are mount points of common client-side frameworks.
const spaRoots = "#__next, #__nuxt, [data-reactroot], div#root, div#app"

// Heuristic flags bodies that look client-rendered.
type Heuristic struct {
	// BodyLengthThreshold is the size below which a script-heavy body is
	// promoted even when the marker is present.
	BodyLengthThreshold int
	// Marker is a CSS selector expected in server-rendered pages, normally
	// the infobox table selector. Empty disables the marker check.
	Marker string
}

// NewHeuristic creates a detector. A zero threshold defaults to 2048 bytes.
func NewHeuristic(threshold int, marker string) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, Marker: marker}
}

// ShouldPromote reports whether resp should be fetched again headless.
func (h *Heuristic) ShouldPromote(resp infobox.FetchResponse) bool {
	return h.Reason(resp) != ""
}

// Reason names why resp needs the headless fetcher, or returns "" when the
// response can be extracted as is.
func (h *Heuristic) Reason(resp infobox.FetchResponse) string {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless {
		return ""
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return ReasonEmptyBody
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return ""
	}
	if doc.Find(spaRoots).Length() > 0 {
		return ReasonSPARoot
	}
	scripted := scriptHeavy(doc, len(resp.Body))
	if !scripted {
		return ""
	}
	if len(resp.Body) < h.BodyLengthThreshold {
		return ReasonShortScripted
	}
	if h.Marker != "" && doc.Find(h.Marker).Length() == 0 {
		return ReasonMissingMarker
	}
	return ""
}

func scriptHeavy(doc *goquery.Document, bodyLen int) bool {
	if bodyLen == 0 {
		return false
	}
	scriptBytes := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	return scriptBytes*100/bodyLen >= scriptSharePercent
}
