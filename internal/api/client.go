package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"animcancel/internal/automation"
	"animcancel/internal/config"
	"animcancel/internal/protocol"
)

// Client talks to a running instance's control API
type Client struct {
	addr  string
	token string
	http  *http.Client
}

// NewClient creates a client for the API at addr ("127.0.0.1:18181")
func NewClient(addr, token string) *Client {
	return &Client{
		addr:  addr,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	u := url.URL{Scheme: "http", Host: c.addr, Path: path}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches the automation status
func (c *Client) Status(ctx context.Context) (automation.Status, error) {
	var st automation.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Start asks the instance to start capturing
func (c *Client) Start(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/start", nil, nil)
}

// Stop asks the instance to stop and waits for it
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/stop", nil, nil)
}

// Config fetches the live settings
func (c *Client) Config(ctx context.Context) (config.Settings, error) {
	var s config.Settings
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &s)
	return s, err
}

// UpdateConfig changes the live settings and returns the result
func (c *Client) UpdateConfig(ctx context.Context, upd ConfigUpdate) (config.Settings, error) {
	var s config.Settings
	err := c.do(ctx, http.MethodPost, "/api/config", upd, &s)
	return s, err
}

// Watch streams state snapshots to fn until ctx is done or the connection drops.
func (c *Client) Watch(ctx context.Context, fn func(automation.Status)) error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.String(), err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WS Client: Invalid message: %v", err)
			continue
		}
		if msg.Type != protocol.TypeState {
			continue
		}
		var st automation.Status
		if err := protocol.DecodePayload(msg, &st); err != nil {
			log.Printf("WS Client: Invalid state payload: %v", err)
			continue
		}
		fn(st)
	}
}
