package infobox

import "strconv"

// Window describes which slice of a result set to serve.
type Window struct {
	Number     int
	TotalPages int
	Offset     int
	Limit      int
}

// Paginate resolves a requested page number against a result count. There is
// always at least one page; requests outside [1, TotalPages] serve the last page.
func Paginate(total, size, requested int) Window {
	if size <= 0 {
		size = PageSize
	}
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	number := requested
	if number < 1 || number > totalPages {
		number = totalPages
	}
	return Window{
		Number:     number,
		TotalPages: totalPages,
		Offset:     (number - 1) * size,
		Limit:      size,
	}
}

// ParsePageNumber reads a page query parameter. Empty or non-numeric input is page 1.
func ParsePageNumber(raw string) int {
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}
