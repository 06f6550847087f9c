package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker"

	"github.com/lox/aqiforecast/internal/httputil"
)

const systemPrompt = `You write short air quality outlooks for a public dashboard in India.
Rewrite the forecast summary you are given in at most two plain sentences.
Keep every number, date and AQI category exactly as given. No markdown, no greeting.`

// maxOutlookLen caps model output that ignores the length instruction.
const maxOutlookLen = 400

// Writer rewrites outlooks with an OpenAI chat model.
type Writer struct {
	client  openai.Client
	model   openai.ChatModel
	circuit *gobreaker.CircuitBreaker
}

// NewWriter creates a Writer from the OPENAI_API_KEY environment variable.
func NewWriter() (*Writer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return newWriter(apiKey)
}

func newWriter(apiKey string, opts ...option.RequestOption) (*Writer, error) {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httputil.NewClient()),
	}, opts...)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("narrative: %s circuit %s -> %s", name, from, to)
		},
	})

	return &Writer{
		client:  openai.NewClient(opts...),
		model:   openai.ChatModelGPT4oMini,
		circuit: cb,
	}, nil
}

// Rewrite asks the model to restate summary. After repeated failures the
// circuit opens and calls fail fast until it half-opens again.
func (w *Writer) Rewrite(ctx context.Context, summary string) (string, error) {
	out, err := w.circuit.Execute(func() (interface{}, error) {
		return w.complete(ctx, summary)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (w *Writer) complete(ctx context.Context, summary string) (string, error) {
	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: w.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(summary),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}

	text := cleanOutput(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion returned")
	}
	log.Printf("narrative: rewrote outlook with %s (%d chars)", w.model, len(text))
	return text, nil
}

func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"`")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxOutlookLen {
		cut := strings.LastIndex(s[:maxOutlookLen], ". ")
		if cut <= 0 {
			cut = maxOutlookLen - 1
		}
		s = s[:cut+1]
	}
	return s
}
