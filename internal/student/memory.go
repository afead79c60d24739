package student

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo serves a fixed roster. It backs development runs without a
// database.
type MemoryRepo struct {
	mu       sync.RWMutex
	students []Student
}

var _ StudentRepo = (*MemoryRepo)(nil)

func NewMemoryRepo(students ...Student) *MemoryRepo {
	sorted := append([]Student(nil), students...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &MemoryRepo{students: sorted}
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int, search string) ([]Student, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(search)
	var matched []Student
	for _, s := range m.students {
		if needle == "" ||
			strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.Email), needle) {
			matched = append(matched, s)
		}
	}

	total := len(matched)
	if offset < 0 || offset >= total {
		return []Student{}, total, nil
	}
	end := min(offset+limit, total)
	return append([]Student(nil), matched[offset:end]...), total, nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.students {
		if s.ID == id {
			out := s
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListAll(_ context.Context) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Student(nil), m.students...), nil
}
