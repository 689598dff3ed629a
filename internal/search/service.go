package search

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Engine is a full-text index. *Meili is the production implementation.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]uint, error)
	Index(records []Record) error
	Delete(key string) error
}

// Fallback answers queries from the primary database.
type Fallback interface {
	SearchIDs(ctx context.Context, kind, text string, limit int) ([]uint, error)
}

// Service is the facade that tries the engine first and falls back to SQL.
type Service struct {
	engine   Engine
	fallback Fallback
	log      *zap.Logger
	async    bool
}

// NewService creates a search service. engine may be nil when Meilisearch
// is not configured.
func NewService(engine Engine, fallback Fallback, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{engine: engine, fallback: fallback, log: log.Named("search"), async: true}
}

func (s *Service) engineUp() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search returns ids of q.Kind rows matching q.Text, best match first.
func (s *Service) Search(ctx context.Context, q Query) ([]uint, error) {
	q.Text = strings.TrimSpace(q.Text)
	if s.engineUp() {
		ids, err := s.engine.Search(q)
		if err == nil {
			return ids, nil
		}
		s.log.Warn("engine error, falling back to sql", zap.Error(err))
	}
	return s.fallback.SearchIDs(ctx, q.Kind, q.Text, q.Limit)
}

// Index pushes a record (fire-and-forget).
func (s *Service) Index(record Record) {
	if !s.engineUp() {
		return
	}
	s.run(func() {
		if err := s.engine.Index([]Record{record}); err != nil {
			s.log.Warn("index record", zap.String("id", record.ID), zap.Error(err))
		}
	})
}

// Delete drops a record from the index (fire-and-forget).
func (s *Service) Delete(kind string, id uint) {
	if !s.engineUp() {
		return
	}
	key := RecordKey(kind, id)
	s.run(func() {
		if err := s.engine.Delete(key); err != nil {
			s.log.Warn("delete record", zap.String("id", key), zap.Error(err))
		}
	})
}

// Reindex pushes every record synchronously; used at startup.
func (s *Service) Reindex(records []Record) {
	if !s.engineUp() || len(records) == 0 {
		return
	}
	if err := s.engine.Index(records); err != nil {
		s.log.Warn("reindex", zap.Int("records", len(records)), zap.Error(err))
		return
	}
	s.log.Info("reindexed", zap.Int("records", len(records)))
}

func (s *Service) run(fn func()) {
	if s.async {
		go fn()
		return
	}
	fn()
}
