package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/fcm"
)

// ErrNoDevices is returned when a test push has nobody to go to.
var ErrNoDevices = errors.New("no registered devices")

// Multicaster is the part of the FCM client the push transport needs.
type Multicaster interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (fcm.MulticastResult, error)
	IsEnabled() bool
}

// TokenSource yields the registered device tokens and drops dead ones.
type TokenSource interface {
	Tokens() []string
	Prune(tokens []string) int
}

// PushTransport delivers signals to every registered device.
type PushTransport struct {
	client Multicaster
	tokens TokenSource
	log    zerolog.Logger
}

func NewPushTransport(client Multicaster, tokens TokenSource, log zerolog.Logger) *PushTransport {
	return &PushTransport{
		client: client,
		tokens: tokens,
		log:    log.With().Str("component", "push").Logger(),
	}
}

func (t *PushTransport) Name() string { return "push" }

// Send is a no-op when no device is registered.
func (t *PushTransport) Send(ctx context.Context, signal domain.Signal) error {
	tokens := t.tokens.Tokens()
	if len(tokens) == 0 {
		return nil
	}
	data := map[string]string{
		"type":      "signal",
		"signal_id": strconv.FormatInt(signal.ID, 10),
		"symbol":    signal.Symbol,
		"direction": string(signal.Direction),
		"signal":    fcm.DataToJSON(signal),
	}
	_, err := t.multicast(ctx, tokens, PushTitle(signal), PushBody(signal), data)
	return err
}

// SendTest pushes a fixed message to every device and returns how many
// devices it was sent to.
func (t *PushTransport) SendTest(ctx context.Context) (int, error) {
	if !t.client.IsEnabled() {
		return 0, fcm.ErrDisabled
	}
	tokens := t.tokens.Tokens()
	if len(tokens) == 0 {
		return 0, ErrNoDevices
	}
	data := map[string]string{"type": "test"}
	_, err := t.multicast(ctx, tokens,
		"🧪 Test Notification",
		"This is a test notification from MT5 Signal Bot. If you see this, notifications are working! ✅",
		data)
	return len(tokens), err
}

func (t *PushTransport) multicast(ctx context.Context, tokens []string, title, body string, data map[string]string) (fcm.MulticastResult, error) {
	res, err := t.client.SendMulticast(ctx, tokens, title, body, data)
	if err != nil {
		return res, err
	}
	if n := t.tokens.Prune(res.Unregistered); n > 0 {
		t.log.Info().Int("pruned", n).Msg("removed unregistered device tokens")
	}
	if res.Success == 0 && res.Failure > 0 {
		return res, fmt.Errorf("push: all %d deliveries failed", res.Failure)
	}
	return res, nil
}
