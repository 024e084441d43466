package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/shehryarbajwa/decoyd/pkg/models"
)

const DefaultClientTimeout = 10 * time.Second

// Client sends commands to a running daemon over its socket.
type Client struct {
	path    string
	timeout time.Duration
}

func NewClient(path string) *Client {
	return &Client{path: path, timeout: DefaultClientTimeout}
}

// Send delivers cmd and returns the daemon's answer. A Response with
// Success false is not an error.
func (c *Client) Send(ctx context.Context, cmd models.Command) (models.Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return models.Response{}, fmt.Errorf("daemon not reachable at %s: %w", c.path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return models.Response{}, fmt.Errorf("send %s: %w", cmd.Command, err)
	}

	var resp models.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return models.Response{}, fmt.Errorf("%w: read %s response: %v", ErrDecode, cmd.Command, err)
	}
	return resp, nil
}

// Do sends a bare command by name.
func (c *Client) Do(ctx context.Context, name string) (models.Response, error) {
	return c.Send(ctx, models.Command{Command: name})
}
