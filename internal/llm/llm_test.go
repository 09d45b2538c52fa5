package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns scripted responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Errs     []error // consumed one per call; nil entries mean success
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := len(m.Calls)
	m.Calls = append(m.Calls, req)
	if call < len(m.Errs) && m.Errs[call] != nil {
		return nil, m.Errs[call]
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:  "test-model",
		Prompt: "hello",
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
	if mock.Calls[0].Model != "test-model" {
		t.Errorf("expected model 'test-model', got %q", mock.Calls[0].Model)
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	for _, p := range []string{"openai", "anthropic"} {
		if _, err := NewProvider(p, "some-model"); err == nil {
			t.Errorf("expected error for %s without API key", p)
		}
	}
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	if _, err := NewProvider("nonsense", "model"); err == nil {
		t.Error("expected error for unknown provider type")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{200, nil},
		{201, nil},
		{429, ErrRateLimited},
		{408, ErrTimeout},
		{504, ErrTimeout},
		{500, ErrInvalidResponse},
		{400, ErrInvalidResponse},
	}
	for _, tc := range cases {
		got := classifyStatus(tc.status)
		if !errors.Is(got, tc.want) && got != tc.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestRetryProviderRetriesTransientErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{
		fmt.Errorf("%w: slow down", ErrRateLimited),
		fmt.Errorf("%w: still slow", ErrRateLimited),
		nil,
	}

	retry := &RetryProvider{provider: mock, maxAttempts: 3, baseDelay: time.Millisecond}
	resp, err := retry.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", mock.CallCount())
	}
}

func TestRetryProviderGivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{
		fmt.Errorf("%w", ErrTimeout),
		fmt.Errorf("%w", ErrTimeout),
		fmt.Errorf("%w", ErrTimeout),
	}

	retry := &RetryProvider{provider: mock, maxAttempts: 3, baseDelay: time.Millisecond}
	_, err := retry.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", mock.CallCount())
	}
}

func TestRetryProviderDoesNotRetryPermanentErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{fmt.Errorf("%w: garbage", ErrInvalidResponse)}

	retry := &RetryProvider{provider: mock, maxAttempts: 3, baseDelay: time.Millisecond}
	_, err := retry.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid-response error, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", mock.CallCount())
	}
}

func TestRateLimitedProviderPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	limited := NewRateLimitedProvider(mock, 60)

	resp, err := limited.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if limited.Name() != "test" {
		t.Errorf("Name() = %q, want %q", limited.Name(), "test")
	}
}
