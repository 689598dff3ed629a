package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"dokflow/api/internal/store"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxDocuments = "dokflow_documents"

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     *zap.Logger
}

// NewMeili creates a Meilisearch client and configures the index. The
// returned client is usable even when the first health check fails; a
// background loop picks the server up once it becomes reachable.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		log:    log.Named("search"),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug("create index (may already exist)", zap.String("index", idxDocuments), zap.Error(err))
	}

	index := m.client.Index(idxDocuments)
	filterable := []interface{}{"kind"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := searchableAttributes()
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns matching row ids of q.Kind in ranking order.
func (m *Meili) Search(q Query) ([]uint, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{searchRequest(q)},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := []uint{}
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			if id, ok := decodeRecordID(hit); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// searchRequest restricts matching to store.SearchFields of q.Kind, the
// same columns the SQL fallback compares.
func searchRequest(q Query) *meili.SearchRequest {
	limit := int64(q.Limit)
	if limit == 0 {
		limit = 50
	}
	return &meili.SearchRequest{
		IndexUID:             idxDocuments,
		Query:                q.Text,
		Limit:                limit,
		Filter:               fmt.Sprintf("kind = %q", q.Kind),
		AttributesToSearchOn: store.SearchFields[q.Kind],
		AttributesToRetrieve: []string{"recordId"},
	}
}

// searchableAttributes is the union of every kind's search fields.
func searchableAttributes() []string {
	seen := map[string]bool{}
	var out []string
	for _, kind := range []string{store.KindMom, store.KindJik} {
		for _, f := range store.SearchFields[kind] {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func decodeRecordID(hit meili.Hit) (uint, bool) {
	raw, ok := hit["recordId"]
	if !ok {
		return 0, false
	}
	var id uint
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// Index adds or replaces records.
func (m *Meili) Index(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).AddDocuments(records, nil)
	return err
}

// Delete removes a record by its key.
func (m *Meili) Delete(key string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(key, nil)
	return err
}
