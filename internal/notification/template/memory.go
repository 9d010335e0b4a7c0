package template

import (
	"context"
	"sync"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"
)

// MemoryStore holds template rows in process. It applies the same selection
// rules as PostgresStore and backs the CLI's --templates file mode.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]models.Template
}

func NewMemoryStore(rows ...models.Template) *MemoryStore {
	s := &MemoryStore{rows: make(map[string][]models.Template)}
	for _, row := range rows {
		s.Add(row)
	}
	return s
}

func (s *MemoryStore) Add(row models.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.Name] = append(s.rows[row.Name], row)
}

func (s *MemoryStore) GetTemplate(_ context.Context, name string) (*models.Template, error) {
	s.mu.RLock()
	rows := s.rows[name]
	s.mu.RUnlock()

	best, ok := Latest(rows)
	if !ok {
		return nil, errors.NewTemplateNotFoundError(name)
	}
	tpl := *best
	if err := checkUsable(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}
