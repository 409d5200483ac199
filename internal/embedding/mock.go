package embedding

import (
	"context"
	"sync"
)

// MockProvider is a configurable in-memory Provider for tests. By
// default it returns a deterministic non-zero vector per text; Fail
// hooks individual calls to inject provider errors.
type MockProvider struct {
	Dim int

	// Fail, if set, is consulted before each EmbedBatch call with the
	// zero-based call number and may return an error to inject.
	Fail func(call int) error

	// ZeroAt marks input positions (global across calls) whose vector
	// should come back all-zero.
	ZeroAt map[int]bool

	mu    sync.Mutex
	calls int
	seen  int
}

// NewMockProvider creates a MockProvider with the given dimensionality
func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{Dim: dim}
}

// Name implements Provider
func (m *MockProvider) Name() string { return "mock" }

// Dimensions implements Provider
func (m *MockProvider) Dimensions() int { return m.Dim }

// Calls returns how many EmbedBatch calls were made
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EmbedBatch implements Provider
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	base := m.seen
	m.mu.Unlock()

	if m.Fail != nil {
		if err := m.Fail(call); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.seen = base + len(texts)
	m.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.Dim)
		if !m.ZeroAt[base+i] {
			vec[0] = float32(base+i+1) * 0.001
			if m.Dim > 1 {
				vec[1] = 1
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}
