package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
)

// Commands understood by the terminal's socket server.
const (
	CommandGetSignals       = "GET_SIGNALS"
	CommandGetStatus        = "GET_STATUS"
	CommandSetSettings      = "SET_SETTINGS"
	CommandLoadPreset       = "LOAD_PRESET"
	CommandSubscribeSignals = "SUBSCRIBE_SIGNALS"
)

const (
	DefaultTimeout = 10 * time.Second
	readChunkSize  = 4096
	terminator     = 0x00

	subscribeInterval      = time.Second
	subscribeErrorInterval = 5 * time.Second
)

var (
	ErrNotConnected    = errors.New("not connected to terminal")
	ErrEmptyResponse   = errors.New("empty response from terminal")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrTimeout         = errors.New("terminal connection timeout")
)

// RemoteError is an "error" field returned by the terminal. The connection
// stays usable after one.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("terminal %s: %s", e.Command, e.Message)
}

type request struct {
	Command   string         `json:"command"`
	Params    map[string]any `json:"params"`
	Timestamp string         `json:"timestamp"`
}

// Response is a decoded terminal reply keyed by top-level field.
type Response map[string]json.RawMessage

// Decode unmarshals field key into v. It reports false when the field is
// absent.
func (r Response) Decode(key string, v any) (bool, error) {
	raw, ok := r[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: field %s: %v", ErrInvalidResponse, key, err)
	}
	return true, nil
}

// Client speaks the terminal's NUL-terminated JSON protocol over one TCP
// connection. Calls are serialized so request/response pairs never
// interleave on the wire.
type Client struct {
	addr    string
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(host string, port int, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		log:     log.With().Str("component", "terminal").Logger(),
		now:     time.Now,
	}
}

func (c *Client) Addr() string { return c.addr }

// Connect dials the terminal unless a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.log.Error().Err(err).Str("addr", c.addr).Msg("failed to connect to terminal")
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	c.conn = conn
	c.log.Info().Str("addr", c.addr).Msg("connected to terminal")
	return nil
}

// Close drops the connection. The next call reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.log.Info().Msg("disconnected from terminal")
	return err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send issues one command and waits for its reply. Transport failures
// close the connection; a RemoteError does not.
func (c *Client) Send(ctx context.Context, command string, params map[string]any) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}

	payload, err := json.Marshal(request{
		Command:   command,
		Params:    params,
		Timestamp: c.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}

	raw, peerClosed, err := c.roundTrip(ctx, append(payload, terminator))
	if err != nil {
		c.log.Error().Err(err).Str("command", command).Msg("terminal communication failed")
		_ = c.closeLocked()
		return nil, err
	}
	if peerClosed {
		_ = c.closeLocked()
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		_ = c.closeLocked()
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if msg, ok := resp["error"]; ok {
		var text string
		if json.Unmarshal(msg, &text) != nil {
			text = string(msg)
		}
		return resp, &RemoteError{Command: command, Message: text}
	}
	return resp, nil
}

// roundTrip writes msg and reads until a NUL terminator or EOF. peerClosed
// reports that the terminal hung up after its reply.
func (c *Client) roundTrip(ctx context.Context, msg []byte) (data []byte, peerClosed bool, err error) {
	conn := c.conn
	deadline := c.now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, false, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(msg); err != nil {
		return nil, false, classify(ctx, err)
	}

	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		buf.Write(chunk[:n])
		if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] == terminator {
			break
		}
		if errors.Is(err, io.EOF) {
			peerClosed = true
			break
		}
		if err != nil {
			return nil, false, classify(ctx, err)
		}
	}

	data = bytes.TrimSuffix(buf.Bytes(), []byte{terminator})
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, peerClosed, ErrEmptyResponse
	}
	return data, peerClosed, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

// GetSignals returns the signals the terminal currently holds.
func (c *Client) GetSignals(ctx context.Context) ([]domain.Signal, error) {
	resp, err := c.Send(ctx, CommandGetSignals, nil)
	if err != nil {
		return nil, err
	}
	var signals []domain.Signal
	if _, err := resp.Decode("signals", &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// GetStatus returns the terminal's status fields as sent.
func (c *Client) GetStatus(ctx context.Context) (map[string]any, error) {
	resp, err := c.Send(ctx, CommandGetStatus, nil)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(resp))
	for key, raw := range resp {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidResponse, key, err)
		}
		fields[key] = v
	}
	return fields, nil
}

func (c *Client) SetSettings(ctx context.Context, settings map[string]any) error {
	_, err := c.Send(ctx, CommandSetSettings, settings)
	return err
}

func (c *Client) LoadPreset(ctx context.Context, name string) error {
	_, err := c.Send(ctx, CommandLoadPreset, map[string]any{"preset": name})
	return err
}

// Ping opens a fresh connection and closes it again.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.closeLocked()
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	return c.closeLocked()
}

// Subscribe polls the terminal for pushed signals and hands each to fn
// until ctx is done. Errors back off for longer than the normal poll.
func (c *Client) Subscribe(ctx context.Context, fn func(domain.Signal)) error {
	for {
		wait := subscribeInterval
		resp, err := c.Send(ctx, CommandSubscribeSignals, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Msg("signal subscription poll failed")
			wait = subscribeErrorInterval
		} else {
			var sig domain.Signal
			ok, derr := resp.Decode("signal", &sig)
			switch {
			case derr != nil:
				c.log.Warn().Err(derr).Msg("dropping malformed pushed signal")
			case ok:
				fn(sig)
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
