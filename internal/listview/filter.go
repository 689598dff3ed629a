// Package listview backs the NDA, MOM and JIK tables: a substring filter
// over the fetched rows and per-row action state for exports and deletes.
package listview

import (
	"strings"

	"dokflow/api/internal/store"
)

// Filter keeps rows where any of fields(row) contains query, ignoring case.
// A blank query keeps every row. The input slice is never modified.
func Filter[T any](rows []T, query string, fields func(T) []string) []T {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if needle == "" || matches(fields(row), needle) {
			out = append(out, row)
		}
	}
	return out
}

func matches(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// MOM rows match on title as well as company.
func MomFields(m store.Mom) []string {
	return []string{m.CompanyName(), m.Title}
}

func JikFields(j store.Jik) []string {
	return []string{j.CompanyName()}
}

func NdaFields(p store.Progress) []string {
	return []string{p.Company.Name}
}
