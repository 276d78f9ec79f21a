package llm

import (
	"context"
	"sync"
)

// MockClient is a test double implementing Client. Calls are counted so
// tests can assert that cheap tiers never reach the model.
type MockClient struct {
	ProposalResult   ProposalResponse
	ProposalErr      error
	ExtractionResult ExtractionResponse
	ExtractionErr    error

	mu              sync.Mutex
	proposalCalls   int
	extractionCalls int
}

// ProposeRules returns the configured proposal.
func (m *MockClient) ProposeRules(_ context.Context, _ string) (ProposalResponse, error) {
	m.mu.Lock()
	m.proposalCalls++
	m.mu.Unlock()
	return m.ProposalResult, m.ProposalErr
}

// ExtractFields returns the configured extraction.
func (m *MockClient) ExtractFields(_ context.Context, _ string) (ExtractionResponse, error) {
	m.mu.Lock()
	m.extractionCalls++
	m.mu.Unlock()
	return m.ExtractionResult, m.ExtractionErr
}

// ProposalCalls reports how many proposal requests were made.
func (m *MockClient) ProposalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proposalCalls
}

// ExtractionCalls reports how many extraction requests were made.
func (m *MockClient) ExtractionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extractionCalls
}
