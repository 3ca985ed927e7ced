package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// baseURL is a placeholder host; every request dials the unix socket.
const baseURL = "http://adt-backend"

// Client is a Backend that talks to a Server over its unix socket.
type Client struct {
	socket string
	client *http.Client
	stream *http.Client
}

// NewClient creates a Client for the daemon at socket. timeout bounds
// request/response calls; output streams are bounded only by their context.
func NewClient(socket string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		socket: socket,
		client: &http.Client{Transport: transport, Timeout: timeout},
		stream: &http.Client{Transport: transport},
	}
}

// Socket returns the daemon socket path.
func (c *Client) Socket() string {
	return c.socket
}

// Health returns nil when the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("backend health: %s", resp.Status)
	}
	return nil
}

// Spawn asks the daemon to start a session.
func (c *Client) Spawn(ctx context.Context, spec SpawnSpec) (Descriptor, error) {
	var desc Descriptor
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", spec, &desc); err != nil {
		return Descriptor{}, &SpawnError{ID: spec.ID, Command: spec.Command, Err: err}
	}
	return desc, nil
}

// Write forwards input to a session.
func (c *Client) Write(ctx context.Context, id string, data []byte) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/input", inputRequest{Data: data}, nil)
}

// Resize changes a session's terminal dimensions.
func (c *Client) Resize(ctx context.Context, id string, cols, rows uint16) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/resize", resizeRequest{Cols: cols, Rows: rows}, nil)
}

// Close terminates a session.
func (c *Client) Close(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// List returns the daemon's sessions, oldest first.
func (c *Client) List(ctx context.Context) ([]Descriptor, error) {
	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Subscribe opens the session's CBOR output stream.
func (c *Client) Subscribe(ctx context.Context, id string, from uint64) (<-chan Event, error) {
	path := "/v1/sessions/" + url.PathEscape(id) + "/stream?from=" + strconv.FormatUint(from, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", streamContentType)
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, decodeError(resp.StatusCode, payload)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		dec := newEventDecoder(resp.Body)
		for {
			var ev Event
			if err := dec.Decode(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(status int, payload []byte) error {
	var wrapper errorResponse
	if err := json.Unmarshal(payload, &wrapper); err == nil && wrapper.Error != "" {
		if wrapper.Code == "unknown_session" {
			return fmt.Errorf("%s: %w", wrapper.Error, ErrUnknownSession)
		}
		return fmt.Errorf("backend (http %d): %s", status, wrapper.Error)
	}
	return fmt.Errorf("backend http %d: %s", status, strings.TrimSpace(string(payload)))
}

// Connect returns a Client for the daemon at socket. When the daemon is not
// answering and autostart is set, exe is started as "exe daemon --socket
// socket" in its own session and polled until healthy or wait elapses.
func Connect(ctx context.Context, socket string, autostart bool, exe string, wait time.Duration) (*Client, error) {
	c := NewClient(socket, 2*time.Second)
	if err := c.Health(ctx); err == nil {
		return c, nil
	} else if !autostart {
		return nil, err
	}

	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		exe = self
	}
	cmd := exec.Command(exe, "daemon", "--socket", socket)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start backend daemon: %w", err)
	}
	// The daemon is not our child to reap.
	_ = cmd.Process.Release()

	deadline := time.Now().Add(wait)
	for {
		err := c.Health(ctx)
		if err == nil {
			return c, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("backend daemon did not become ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// IsUnreachable reports whether err means the daemon could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
