package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"convo-service/internal/models"
	"convo-service/internal/repositories"
)

// systemPrompt is the fixed instruction prepended to every transcript.
const systemPrompt = "You are a helpful AI assistant in a chat application. Be friendly, concise, and helpful. Keep responses conversational and engaging."

// contextWindow bounds how many recent messages accompany a dispatch.
const contextWindow = 20

// ErrDispatchInFlight signals that a dispatch was dropped because another one
// is still running on this dispatcher.
var ErrDispatchInFlight = errors.New("assistant dispatch already in flight")

// CompletionClient abstracts the upstream completion call.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Dispatcher produces and persists assistant replies. At most one dispatch is
// in flight per instance; concurrent requests are dropped, not queued.
type Dispatcher struct {
	client      CompletionClient
	messages    repositories.MessageRepository
	model       string
	maxTokens   int
	temperature float64
	busy        atomic.Bool
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(client CompletionClient, messages repositories.MessageRepository, model string, maxTokens int, temperature float64) *Dispatcher {
	return &Dispatcher{
		client:      client,
		messages:    messages,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Dispatch assembles bounded conversation context around the user's message,
// calls the completion endpoint and stores the reply under the reserved
// assistant identity. On any failure nothing is inserted; the user's own
// message is untouched either way.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID uuid.UUID, content string) (models.Message, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return models.Message{}, ErrDispatchInFlight
	}
	defer d.busy.Store(false)

	window, err := d.messages.RecentWindow(ctx, conversationID, contextWindow)
	if err != nil {
		return models.Message{}, fmt.Errorf("load context window: %w", err)
	}

	transcript := make([]ChatMessage, 0, len(window)+2)
	transcript = append(transcript, ChatMessage{Role: "system", Content: systemPrompt})
	for _, m := range window {
		role := "user"
		if m.SenderID == models.AIAssistantID {
			role = "assistant"
		}
		transcript = append(transcript, ChatMessage{Role: role, Content: m.Content})
	}
	// The current turn is appended explicitly; the window is historical and
	// may already contain it.
	transcript = append(transcript, ChatMessage{Role: "user", Content: content})

	temperature := d.temperature
	maxTokens := d.maxTokens
	resp, err := d.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model:       d.model,
		Messages:    transcript,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("assistant completion: %w", err)
	}

	reply, err := d.messages.CreateMessage(ctx, conversationID, models.AIAssistantID, resp.Choices[0].Message.Content)
	if err != nil {
		return models.Message{}, fmt.Errorf("store assistant reply: %w", err)
	}
	return reply, nil
}
