package detector

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

func ok(body string) infobox.FetchResponse {
	return infobox.FetchResponse{StatusCode: 200, Body: []byte(body)}
}

func TestReason(t *testing.T) {
	t.Parallel()

	scripted := `<html><body><script>` + strings.Repeat("x", 400) + `</script><p>loading</p></body></html>`
	rendered := `<html><body><h1>France</h1><table class="infobox"><tr><th>Capital</th><td>Paris</td></tr></table>` +
		strings.Repeat("<p>text</p>", 400) + `</body></html>`
	plain := `<html><body><h1>Notes</h1>` + strings.Repeat("<p>no infobox here</p>", 200) + `</body></html>`

	cases := []struct {
		name string
		h    *Heuristic
		resp infobox.FetchResponse
		want string
	}{
		{"empty body", NewHeuristic(100, ""), ok("  \n"), ReasonEmptyBody},
		{"next.js root", NewHeuristic(100, ""), ok(`<div id="__next"></div>`), ReasonSPARoot},
		{"react root", NewHeuristic(100, ""), ok(`<div data-reactroot=""></div>`), ReasonSPARoot},
		{"short scripted body", NewHeuristic(4096, "table.infobox"), ok(scripted), ReasonShortScripted},
		{"missing marker with heavy script", NewHeuristic(10, "table.infobox"), ok(scripted), ReasonMissingMarker},
		{"heavy script without marker check", NewHeuristic(10, ""), ok(scripted), ""},
		{"server rendered infobox", NewHeuristic(0, "table.infobox"), ok(rendered), ""},
		{"page without infobox or scripts", NewHeuristic(0, "table.infobox"), ok(plain), ""},
		{"non-200", NewHeuristic(100, ""), infobox.FetchResponse{StatusCode: 404, Body: []byte("not found")}, ""},
		{"already headless", NewHeuristic(100, ""), infobox.FetchResponse{StatusCode: 200, UsedHeadless: true}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.h.Reason(tc.resp))
			require.Equal(t, tc.want != "", tc.h.ShouldPromote(tc.resp))
		})
	}
}

func TestNewHeuristicDefaults(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, "")
	require.Equal(t, 2048, h.BodyLengthThreshold)
	require.Empty(t, h.Marker)
}

func TestScriptHeavy(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<p>a</p><script>` + strings.Repeat("y", 50) + `</script>`))
	require.NoError(t, err)
	require.True(t, scriptHeavy(doc, 70))
	require.False(t, scriptHeavy(doc, 1000))
	require.False(t, scriptHeavy(doc, 0))
}
