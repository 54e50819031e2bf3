package generation

import (
	"context"
	"sync"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Recorder receives each finished GenerationResult together with its usage events. Persistence,
// pagination and export are the recorder's business; the coordinator never reads history back.
type Recorder interface {
	Record(ctx context.Context, result models.GenerationResult) error
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, models.GenerationResult) error { return nil }

// MemoryRecorder keeps results in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	results []models.GenerationResult
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, result models.GenerationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *MemoryRecorder) Results() []models.GenerationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerationResult, len(m.results))
	copy(out, m.results)
	return out
}
