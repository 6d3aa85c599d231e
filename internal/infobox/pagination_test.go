package infobox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		requested int
		want      Window
	}{
		{"empty result has one page", 0, 1, Window{Number: 1, TotalPages: 1, Offset: 0, Limit: 10}},
		{"first page", 15, 1, Window{Number: 1, TotalPages: 2, Offset: 0, Limit: 10}},
		{"second page holds remainder", 15, 2, Window{Number: 2, TotalPages: 2, Offset: 10, Limit: 10}},
		{"exact multiple", 20, 2, Window{Number: 2, TotalPages: 2, Offset: 10, Limit: 10}},
		{"past the end serves last page", 15, 9, Window{Number: 2, TotalPages: 2, Offset: 10, Limit: 10}},
		{"zero serves last page", 25, 0, Window{Number: 3, TotalPages: 3, Offset: 20, Limit: 10}},
		{"negative serves last page", 5, -3, Window{Number: 1, TotalPages: 1, Offset: 0, Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Paginate(tt.total, PageSize, tt.requested))
		})
	}
}

func TestPaginateDefaultsSize(t *testing.T) {
	t.Parallel()

	w := Paginate(11, 0, 2)
	require.Equal(t, PageSize, w.Limit)
	require.Equal(t, 10, w.Offset)
}

func TestParsePageNumber(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, ParsePageNumber(""))
	require.Equal(t, 1, ParsePageNumber("abc"))
	require.Equal(t, 3, ParsePageNumber("3"))
	require.Equal(t, -2, ParsePageNumber("-2"))
}
