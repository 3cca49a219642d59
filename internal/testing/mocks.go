package testing

import (
	"sync"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockAuthorizer is a testify mock of domain.Authorizer
type MockAuthorizer struct {
	mock.Mock
}

// IsAuthorized records the call and returns the configured answer
func (m *MockAuthorizer) IsAuthorized(caller domain.Account, op domain.Operation) bool {
	args := m.Called(caller, op)
	return args.Bool(0)
}

// AllowAll returns an authorizer that accepts every call
func AllowAll() *MockAuthorizer {
	m := &MockAuthorizer{}
	m.On("IsAuthorized", mock.Anything, mock.Anything).Return(true)
	return m
}

// MockSupplySink is a testify mock of domain.SupplySink
type MockSupplySink struct {
	mock.Mock
}

// OnSupplyChange records the change
func (m *MockSupplySink) OnSupplyChange(change domain.SupplyChange) {
	m.Called(change)
}

// RecordingSupplySink keeps every change it receives
type RecordingSupplySink struct {
	mu      sync.Mutex
	changes []domain.SupplyChange
}

// OnSupplyChange appends the change
func (s *RecordingSupplySink) OnSupplyChange(change domain.SupplyChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
}

// Changes returns a copy of the recorded changes
func (s *RecordingSupplySink) Changes() []domain.SupplyChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SupplyChange(nil), s.changes...)
}
