package store

import (
	"context"
	"fmt"
	"strings"
)

// Document kinds shared by search, revisions and row state.
const (
	KindMom = "mom"
	KindJik = "jik"
)

// SearchFields lists the search record fields a list filter matches, per
// kind. The SQL fallback and the search engine both follow it: MOMs match
// on title or company name, JIKs on company name only.
var SearchFields = map[string][]string{
	KindMom: {"title", "companyName"},
	KindJik: {"companyName"},
}

var searchTables = map[string]string{
	KindMom: "moms",
	KindJik: "jiks",
}

// searchPredicate builds the ILIKE clause for kind from SearchFields.
func searchPredicate(kind string) (table, where string, err error) {
	table, ok := searchTables[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown kind %q", kind)
	}
	clauses := make([]string, 0, len(SearchFields[kind]))
	for _, f := range SearchFields[kind] {
		switch f {
		case "title":
			clauses = append(clauses, table+".title ILIKE ?")
		case "companyName":
			clauses = append(clauses, "c.name ILIKE ?")
		default:
			return "", "", fmt.Errorf("no column for search field %q", f)
		}
	}
	return table, strings.Join(clauses, " OR "), nil
}

// SearchIDs is the SQL fallback used when the search engine is unavailable.
func (s *GormStore) SearchIDs(ctx context.Context, kind, text string, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 50
	}
	table, where, err := searchPredicate(kind)
	if err != nil {
		return nil, err
	}
	pattern := likePattern(text)
	args := make([]any, len(SearchFields[kind]))
	for i := range args {
		args[i] = pattern
	}

	var model any = &Jik{}
	if kind == KindMom {
		model = &Mom{}
	}

	var ids []uint
	err = s.db.WithContext(ctx).
		Model(model).
		Joins("JOIN companies c ON c.id = "+table+".company_id").
		Where(where, args...).
		Order(table + ".updated_at DESC").
		Limit(limit).
		Pluck(table+".id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", kind, err)
	}
	return ids, nil
}

func likePattern(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(text))
	return "%" + escaped + "%"
}
