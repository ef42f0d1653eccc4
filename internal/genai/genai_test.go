package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/strideworks/coachguard/internal/models"
)

// mockChatService returns a canned completion.
type mockChatService struct {
	content string
	err     error
	calls   int
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "plain array",
			content: `[{"action_type":"reduce_intensity","reduction_percent":15,"confidence":0.8,"priority":"medium"}]`,
			want:    1,
		},
		{
			name: "fenced json",
			content: "```json\n" +
				`[{"action_type":"motivational_nudge","message":"nice work","confidence":0.6,"priority":"low"}]` +
				"\n```",
			want: 1,
		},
		{
			name:    "empty array",
			content: `[]`,
			want:    0,
		},
		{
			name:    "prose instead of json",
			content: `I suggest reducing intensity this week.`,
			want:    0,
		},
		{
			name: "malformed entries discarded, valid kept",
			content: `[
				{"action_type":"warp_speed","confidence":0.9,"priority":"high"},
				{"action_type":"reduce_intensity","confidence":0.9,"priority":"high"},
				{"action_type":"reduce_intensity","reduction_percent":10,"confidence":0.9,"priority":"high"}
			]`,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCandidates(tt.content)
			if len(got) != tt.want {
				t.Errorf("parseCandidates() = %d candidates, want %d", len(got), tt.want)
			}
			for _, a := range got {
				if err := a.Validate(); err != nil {
					t.Errorf("parsed candidate failed validation: %v", err)
				}
			}
		})
	}
}

func TestProposeMapsWireFields(t *testing.T) {
	mock := &mockChatService{content: `[{
		"action_type": "substitute_workout",
		"workout_id": "w-12",
		"alternative_id": "w-44",
		"reason": "knee pain flare",
		"confidence": 0.75,
		"priority": "high"
	}]`}
	c := NewClientWithChatService(mock)

	actions, err := c.Propose(context.Background(), models.PerceptionSnapshot{SubjectID: "athlete-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("chat calls = %d, want 1", mock.calls)
	}
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(actions))
	}
	a := actions[0]
	if a.ActionType != models.ActionSubstituteWorkout {
		t.Errorf("ActionType = %s", a.ActionType)
	}
	if a.Params.WorkoutID != "w-12" || a.Params.AlternativeID != "w-44" || a.Params.Reason != "knee pain flare" {
		t.Errorf("params = %+v", a.Params)
	}
	if a.Confidence != 0.75 || a.Priority != models.PriorityHigh {
		t.Errorf("confidence/priority = %v/%s", a.Confidence, a.Priority)
	}
}

func TestProposeErrors(t *testing.T) {
	c := NewClientWithChatService(&mockChatService{err: errors.New("rate limited")})
	if _, err := c.Propose(context.Background(), models.PerceptionSnapshot{}); err == nil {
		t.Error("chat failure should surface as an error")
	}

	// A completion with no choices is an error, not zero candidates.
	c = NewClientWithChatService(&noChoicesService{})
	if _, err := c.Propose(context.Background(), models.PerceptionSnapshot{}); err == nil {
		t.Error("empty choice list should surface as an error")
	}
}

type noChoicesService struct{}

func (n *noChoicesService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return &openai.ChatCompletion{}, nil
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("missing API key should error")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Errorf("explicit key should succeed: %v", err)
	}
}
