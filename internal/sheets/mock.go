package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/gigproof/internal/model"
)

// MockWriter is a mock report renderer for testing.
type MockWriter struct {
	WriteFunc   func(ctx context.Context, payload *model.ReportPayload) error
	LastPayload *model.ReportPayload
	WriteCalls  []WriteCall
	mu          sync.Mutex
}

// WriteCall represents a single call to Write.
type WriteCall struct {
	Error   error
	Payload *model.ReportPayload
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		WriteCalls: make([]WriteCall, 0),
	}
}

// Write records the payload and returns WriteFunc's result.
func (m *MockWriter) Write(ctx context.Context, payload *model.ReportPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastPayload = payload

	var err error
	if m.WriteFunc != nil {
		err = m.WriteFunc(ctx, payload)
	}

	m.WriteCalls = append(m.WriteCalls, WriteCall{Payload: payload, Error: err})
	return err
}

// Reset clears all recorded calls.
func (m *MockWriter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls = make([]WriteCall, 0)
	m.LastPayload = nil
}

// GetWriteCalls returns a copy of all write calls.
func (m *MockWriter) GetWriteCalls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]WriteCall, len(m.WriteCalls))
	copy(calls, m.WriteCalls)
	return calls
}

// SetWriteError configures the mock to return err from every Write.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, *model.ReportPayload) error {
		return err
	}
}
