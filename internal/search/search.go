// Package search indexes MOM and JIK rows in Meilisearch and answers list
// filters, falling back to SQL when the engine is unavailable.
package search

import (
	"fmt"
	"strings"

	"dokflow/api/internal/content"
	"dokflow/api/internal/store"
)

// Query describes a list filter.
type Query struct {
	Kind  string
	Text  string
	Limit int
}

// Record is the flattened form of a MOM or JIK pushed to the index.
type Record struct {
	ID          string `json:"id"`
	RecordID    uint   `json:"recordId"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	CompanyName string `json:"companyName"`
	Detail      string `json:"detail"`
	Body        string `json:"body"`
}

// RecordKey is the index primary key for a row.
func RecordKey(kind string, id uint) string {
	return fmt.Sprintf("%s-%d", kind, id)
}

func MomRecord(m store.Mom) Record {
	return Record{
		ID:          RecordKey(store.KindMom, m.ID),
		RecordID:    m.ID,
		Kind:        store.KindMom,
		Title:       m.Title,
		CompanyName: m.CompanyName(),
		Detail:      m.Venue,
		Body:        sectionText(m.Content),
	}
}

func JikRecord(j store.Jik) Record {
	return Record{
		ID:          RecordKey(store.KindJik, j.ID),
		RecordID:    j.ID,
		Kind:        store.KindJik,
		Title:       j.Title,
		CompanyName: j.CompanyName(),
		Detail:      strings.TrimSpace(j.UnitName + " " + j.InitiativePartnership),
		Body:        sectionText(j.Content),
	}
}

// sectionText flattens content for indexing. Unparseable content indexes
// as empty rather than blocking the row.
func sectionText(raw []byte) string {
	sections, err := content.ParseSections(raw)
	if err != nil {
		return ""
	}
	parts := make([]string, 0, len(sections)*2)
	for _, s := range sections {
		parts = append(parts, s.Title, s.Content.PlainText())
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
