// Package notify hands oversight-flagged actions to a human coach.
//
// This file implements SMS delivery through the Twilio REST API.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/strideworks/coachguard/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio API the notifier uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	CoachTo    string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending phone number.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithCoachNumber sets the coach's phone number.
func WithCoachNumber(to string) Option {
	return func(o *Opts) { o.CoachTo = to }
}

// TwilioNotifier delivers oversight requests as SMS messages to a coach.
type TwilioNotifier struct {
	api     messageCreator
	from    string
	coachTo string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options fall back to
// the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// COACH_PHONE_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.CoachTo == "" {
		cfg.CoachTo = os.Getenv("COACH_PHONE_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"CoachTo_set", cfg.CoachTo != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.CoachTo == "" {
		return nil, fmt.Errorf("from and coach phone numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{api: client.Api, from: cfg.From, coachTo: cfg.CoachTo}, nil
}

// NotifyOversight sends one SMS describing the action awaiting review.
func (n *TwilioNotifier) NotifyOversight(ctx context.Context, action models.AgentAction) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.coachTo)
	params.SetFrom(n.from)
	params.SetBody(FormatOversightMessage(action))

	if _, err := n.api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier NotifyOversight failed", "error", err, "actionID", action.ID)
		return fmt.Errorf("failed to send oversight SMS for action %s: %w", action.ID, err)
	}
	slog.Debug("TwilioNotifier NotifyOversight sent", "actionID", action.ID, "actionType", action.ActionType)
	return nil
}
