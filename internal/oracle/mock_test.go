package oracle

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/usage-insight/pkg/anthropic"
)

// MockClient implements anthropic.Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}

// blockingClient waits for the attempt context to expire.
type blockingClient struct {
	calls int
}

func (b *blockingClient) CreateMessage(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}
