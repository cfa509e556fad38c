package persistence

import "strings"

// sortColumns whitelists the columns a listing may be ordered by. Input is
// matched exactly after trimming; anything else falls back to fallback, so
// user input never reaches the ORDER BY clause.
type sortColumns struct {
	allowed  map[string]struct{}
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	allowed := make(map[string]struct{}, len(columns)+1)
	allowed[fallback] = struct{}{}
	for _, c := range columns {
		allowed[c] = struct{}{}
	}
	return sortColumns{allowed: allowed, fallback: fallback}
}

func (s sortColumns) column(in string) string {
	in = strings.TrimSpace(in)
	if _, ok := s.allowed[in]; ok {
		return in
	}
	return s.fallback
}

// sortDirection is ASC only for a case-insensitive "asc"; everything else
// sorts newest first.
func sortDirection(in string) string {
	if strings.EqualFold(strings.TrimSpace(in), "asc") {
		return "ASC"
	}
	return "DESC"
}

// order builds "column DIR, id DIR". id breaks ties so pages stay stable.
func (s sortColumns) order(sortBy, sortOrder string) string {
	dir := sortDirection(sortOrder)
	return s.column(sortBy) + " " + dir + ", id " + dir
}

var queueSort = newSortColumns("created_at",
	"updated_at", "next_retry_at", "attempts", "ticket_id", "status")
