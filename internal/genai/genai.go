// Package genai provides the OpenAI-backed decision provider.
//
// It prompts a chat model with the subject's perception snapshot and parses
// the candidate actions it proposes. The model only ever proposes: every
// candidate still passes through the guardrail layer, which may reject,
// downgrade to review, or block it.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/strideworks/coachguard/internal/models"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.ChatModelGPT4oMini

const systemPrompt = `You are the decision module of a training coach agent.
Given an athlete's current perception snapshot (training load, injuries,
readiness, adherence), propose zero or more candidate adjustments.

Respond with a JSON array only, no prose. Each element:
{"action_type": one of "reduce_intensity", "reduce_duration",
 "substitute_workout", "inject_rest_day", "recommend_skip",
 "adjust_program", "motivational_nudge", "check_in_request",
 "reduction_percent": integer (reduce_* types only),
 "workout_id": string (substitute/skip types only),
 "reason": short string,
 "confidence": number between 0 and 1,
 "priority": one of "low", "medium", "high", "urgent"}

Propose nothing when the data gives no reason to intervene. Never assume a
proposal will be applied.`

// chatService defines the minimal chat-completions interface, so tests can
// substitute a mock for the OpenAI client.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// candidate is the wire shape the model responds with.
type candidate struct {
	ActionType       string  `json:"action_type"`
	ReductionPercent int     `json:"reduction_percent,omitempty"`
	WorkoutID        string  `json:"workout_id,omitempty"`
	AlternativeID    string  `json:"alternative_id,omitempty"`
	TargetDate       string  `json:"target_date,omitempty"`
	Message          string  `json:"message,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	Confidence       float64 `json:"confidence"`
	Priority         string  `json:"priority"`
}

// Client is the OpenAI-backed decision provider.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := openai.ChatModel(cfg.Model)
	if cfg.Model == "" {
		model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: model}, nil
}

// NewClientWithChatService creates a client over a custom chat service, for tests.
func NewClientWithChatService(chat chatService) *Client {
	return &Client{chat: chat, model: DefaultModel}
}

// Propose generates candidate actions for the snapshot. Candidates that fail
// shape validation are discarded with a warning rather than failing the call.
func (c *Client) Propose(ctx context.Context, perception models.PerceptionSnapshot) ([]models.ProposedAction, error) {
	snapshotJSON, err := json.Marshal(perception)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal perception: %w", err)
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(snapshotJSON)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return parseCandidates(resp.Choices[0].Message.Content), nil
}

// parseCandidates decodes the model output, tolerating code fences and
// discarding malformed entries.
func parseCandidates(content string) []models.ProposedAction {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw []candidate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		slog.Warn("genai: failed to parse model output as candidate array", "error", err)
		return nil
	}

	var actions []models.ProposedAction
	for _, cand := range raw {
		action := models.ProposedAction{
			ActionType: models.ActionType(cand.ActionType),
			Confidence: cand.Confidence,
			Priority:   models.Priority(cand.Priority),
			Params: models.ActionParams{
				ReductionPercent: cand.ReductionPercent,
				WorkoutID:        cand.WorkoutID,
				AlternativeID:    cand.AlternativeID,
				TargetDate:       cand.TargetDate,
				Message:          cand.Message,
				Reason:           cand.Reason,
			},
		}
		if err := action.Validate(); err != nil {
			slog.Warn("genai: discarding malformed candidate", "error", err, "actionType", cand.ActionType)
			continue
		}
		actions = append(actions, action)
	}
	return actions
}
