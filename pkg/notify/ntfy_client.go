package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ntfyRequest is the publish body for the ntfy JSON API.
type ntfyRequest struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// NtfyClient publishes notifications to an ntfy server.
type NtfyClient struct {
	server string
	topic  string
	client *http.Client
}

// NewNtfyClient creates a client for the given server and topic.
func NewNtfyClient(server, topic string) *NtfyClient {
	return &NtfyClient{
		server: server,
		topic:  topic,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send publishes the notification. The JSON endpoint is the server
// root, with the topic carried in the body.
func (c *NtfyClient) Send(n Notification) error {
	payload := ntfyRequest{
		Topic:    c.topic,
		Title:    n.Title,
		Message:  n.Message,
		Priority: priorityFor(n.Event),
		Tags:     tagsFor(n.Event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	resp, err := c.client.Post(c.server, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

// priorityFor maps session events to ntfy priorities. A timeout is
// urgent, a warning is high, everything else uses the server default.
func priorityFor(event string) int {
	switch event {
	case "timeout":
		return 5
	case "warning":
		return 4
	default:
		return 0
	}
}

func tagsFor(event string) []string {
	switch event {
	case "warning":
		return []string{"hourglass_flowing_sand"}
	case "timeout":
		return []string{"zzz"}
	default:
		return nil
	}
}
