package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

// Client talks to a local Ollama server's chat endpoint.
type Client struct {
	host  string
	model string
	http  *http.Client
	log   zerolog.Logger
}

func NewClient(host, model string, log zerolog.Logger) *Client {
	host = strings.TrimRight(host, "/")
	// the AI call carries no timeout; local models can be slow
	return &Client{host: host, model: model, http: &http.Client{}, log: log}
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	if c.host == "" {
		return "", &domain.UpstreamError{Engine: "ollama", Err: fmt.Errorf("missing host")}
	}
	type wireMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	msgs := make([]wireMsg, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, wireMsg{Role: m.Role, Content: m.Content})
	}
	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   false,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.UpstreamError{Engine: "ollama", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &domain.UpstreamError{Engine: "ollama", Err: fmt.Errorf("status=%d", resp.StatusCode)}
	}
	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.UpstreamError{Engine: "ollama", Err: err}
	}
	return out.Message.Content, nil
}
