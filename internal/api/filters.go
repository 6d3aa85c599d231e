package api

import (
	"fmt"
	"net/url"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// parseFilters reads filters[0][field], filters[0][value], filters[1][field], ...
// and stops at the first index where either key is absent.
func parseFilters(q url.Values) []infobox.Constraint {
	var constraints []infobox.Constraint
	for i := 0; ; i++ {
		field, hasField := q[fmt.Sprintf("filters[%d][field]", i)]
		value, hasValue := q[fmt.Sprintf("filters[%d][value]", i)]
		if !hasField || !hasValue || len(field) == 0 || len(value) == 0 {
			return constraints
		}
		constraints = append(constraints, infobox.Constraint{Field: field[0], Value: value[0]})
	}
}
