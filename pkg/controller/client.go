// Package controller provides the short-lived authenticated clients the
// deploy stages use to talk to the controller: a status query for collision
// checking and the deploy/relation calls executing a bundle. Callers treat
// these as opaque blocking operations; all errors come back as plain error
// values.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// Client is a synchronous RPC client on the controller WebSocket API. It is
// not safe for concurrent use; the deploy stages create one per job and
// close it when the job ends.
type Client struct {
	conn   *websocket.Conn
	nextID uint64
}

// Dial connects a new client to the controller endpoint.
func Dial(ctx context.Context, apiURL string) (*Client, error) {
	header := http.Header{"Origin": []string{httpOrigin(apiURL)}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, apiURL, header)
	if err != nil {
		return nil, fmt.Errorf("connect to controller: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Login authenticates the connection with the admin password.
func (c *Client) Login(password string) error {
	return c.call("Admin", "Login", map[string]any{
		"AuthTag":  "user-admin",
		"Password": password,
	}, nil)
}

type statusResult struct {
	Services map[string]json.RawMessage `json:"Services"`
}

// ServiceNames returns the names of the services currently deployed in the
// environment.
func (c *Client) ServiceNames() ([]string, error) {
	var result statusResult
	if err := c.call("Client", "Status", map[string]any{}, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Services))
	for name := range result.Services {
		names = append(names, name)
	}
	return names, nil
}

// Deploy creates a service from a charm.
func (c *Client) Deploy(name, charmURL string, numUnits int, options map[string]any) error {
	if options == nil {
		options = map[string]any{}
	}
	return c.call("Client", "ServiceDeploy", map[string]any{
		"ServiceName": name,
		"CharmUrl":    charmURL,
		"NumUnits":    numUnits,
		"Config":      options,
	}, nil)
}

// AddRelation relates two service endpoints.
func (c *Client) AddRelation(first, second string) error {
	return c.call("Client", "AddRelation", map[string]any{
		"Endpoints": []string{first, second},
	}, nil)
}

type rpcResponse struct {
	RequestID uint64          `json:"RequestId"`
	Error     string          `json:"Error"`
	Response  json.RawMessage `json:"Response"`
}

// call performs one request/response exchange. Responses for other request
// ids (stray notifications from earlier calls) are skipped.
func (c *Client) call(callType, request string, params map[string]any, result any) error {
	c.nextID++
	id := c.nextID
	err := c.conn.WriteJSON(map[string]any{
		"RequestId": id,
		"Type":      callType,
		"Request":   request,
		"Params":    params,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", request, err)
	}
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("%s: %w", request, err)
		}
		if resp.RequestID != id {
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("%s: %s", request, resp.Error)
		}
		if result != nil && len(resp.Response) != 0 {
			if err := json.Unmarshal(resp.Response, result); err != nil {
				return fmt.Errorf("%s: decode response: %w", request, err)
			}
		}
		return nil
	}
}

// httpOrigin returns the HTTP(S) origin equivalent of a WebSocket URL.
func httpOrigin(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}
