package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiStreamer implements Streamer using Google's Gemini API. Each
// opened channel wraps one genai chat session, which carries the
// conversation history across turns.
type GeminiStreamer struct {
	client  *genai.Client
	modelID string
}

// NewGeminiStreamer creates a new Gemini-backed streamer.
func NewGeminiStreamer(ctx context.Context, apiKey, modelID string) (*GeminiStreamer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiStreamer{
		client:  client,
		modelID: modelID,
	}, nil
}

// Open configures a model with the system instruction and starts a chat
// session seeded with the supplied history.
func (s *GeminiStreamer) Open(ctx context.Context, systemInstruction string, history []ChatMessage) (StreamChannel, error) {
	_ = ctx
	model := s.client.GenerativeModel(s.modelID)
	if strings.TrimSpace(systemInstruction) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	}

	cs := model.StartChat()
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	return &geminiChannel{session: cs, closed: make(chan struct{})}, nil
}

// Close releases resources held by the underlying Gemini client.
func (s *GeminiStreamer) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

type geminiChannel struct {
	session   *genai.ChatSession
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *geminiChannel) Send(ctx context.Context, userText string) (<-chan StreamChunk, error) {
	select {
	case <-c.closed:
		return nil, errors.New("conversation: stream channel is closed")
	default:
	}

	iter := c.session.SendMessageStream(ctx, genai.Text(userText))
	out := make(chan StreamChunk, 32)

	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				c.deliver(out, StreamChunk{Done: true})
				return
			}
			if err != nil {
				c.deliver(out, StreamChunk{Done: true, Err: fmt.Errorf("conversation: gemini stream: %w", err)})
				return
			}
			if text := candidateText(resp); text != "" {
				if !c.deliver(out, StreamChunk{Text: text}) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deliver sends a chunk unless the channel was closed; a closed channel
// swallows late fragments so they cannot reach a disposed session.
func (c *geminiChannel) deliver(out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-c.closed:
		return false
	case out <- chunk:
		return true
	}
}

func (c *geminiChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
