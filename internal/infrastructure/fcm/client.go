package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// DefaultChannelID is the Android notification channel signals are posted to.
const DefaultChannelID = "signal_alerts"

var ErrDisabled = errors.New("FCM client not initialized")

// Config selects the service account. CredentialsPath wins over
// CredentialsJSON; with neither set the client is disabled.
type Config struct {
	CredentialsPath string
	CredentialsJSON string
	ChannelID       string
}

type sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Client struct {
	client    sender
	channelID string
	log       zerolog.Logger
}

// MulticastResult summarizes one multicast. Unregistered lists the tokens
// FCM reported as no longer valid.
type MulticastResult struct {
	Success      int
	Failure      int
	Unregistered []string
}

// NewClient initializes Firebase Cloud Messaging client
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("component", "fcm").Logger()
	channel := cfg.ChannelID
	if channel == "" {
		channel = DefaultChannelID
	}

	var opt option.ClientOption
	switch {
	case cfg.CredentialsPath != "":
		opt = option.WithCredentialsFile(cfg.CredentialsPath)
	case cfg.CredentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	default:
		log.Warn().Msg("no Firebase credentials found, push notifications disabled")
		return &Client{channelID: channel, log: log}, nil
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	log.Info().Msg("Firebase Cloud Messaging initialized")
	return &Client{client: client, channelID: channel, log: log}, nil
}

// SendMulticast sends notification to multiple tokens
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (MulticastResult, error) {
	if c.client == nil {
		return MulticastResult{}, ErrDisabled
	}
	if len(tokens) == 0 {
		return MulticastResult{}, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: c.channelID,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return MulticastResult{}, fmt.Errorf("error sending multicast: %w", err)
	}

	res := MulticastResult{Success: response.SuccessCount, Failure: response.FailureCount}
	for i, r := range response.Responses {
		if r == nil || r.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) {
			res.Unregistered = append(res.Unregistered, tokens[i])
		}
	}

	c.log.Debug().
		Int("success", res.Success).
		Int("failure", res.Failure).
		Int("unregistered", len(res.Unregistered)).
		Msg("multicast sent")
	return res, nil
}

// IsEnabled returns true if FCM client is initialized
func (c *Client) IsEnabled() bool {
	return c != nil && c.client != nil
}

// DataToJSON converts data map to JSON string
func DataToJSON(data any) string {
	b, _ := json.Marshal(data)
	return string(b)
}
