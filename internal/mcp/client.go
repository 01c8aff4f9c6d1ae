package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is the supported client for the introspection endpoint served by
// Handler at /mcp/ws. Operators and scripts use it to read the tally,
// sessions and mode of a running bot.
type Client struct {
	client  *sdk.Client
	session *sdk.ClientSession
}

func NewClient(name, version string) *Client {
	return &Client{client: sdk.NewClient(&sdk.Implementation{Name: name, Version: version}, nil)}
}

// Connect dials rawurl. http and https URLs are rewritten to ws and wss.
func (c *Client) Connect(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	sess, err := c.client.Connect(ctx, NewWebSocketTransport(conn), nil)
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.session = sess
	return nil
}

// Call invokes a tool that takes no arguments and decodes its structured
// output into out.
func (c *Client) Call(ctx context.Context, tool string, out any) error {
	if c.session == nil {
		return fmt.Errorf("mcp client not connected")
	}
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: tool, Arguments: map[string]any{}})
	if err != nil {
		return err
	}
	if res.IsError {
		return fmt.Errorf("tool %s failed", tool)
	}
	if len(res.Content) == 0 {
		return fmt.Errorf("tool %s returned no content", tool)
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		return fmt.Errorf("tool %s returned %T", tool, res.Content[0])
	}
	return json.Unmarshal([]byte(text.Text), out)
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
