// Package classifier calls the external entity classifier over HTTP and
// turns its answer into an entity map.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/docredact/internal/content"
)

// DefaultTimeout bounds one classify call when New gets a non-positive timeout.
const DefaultTimeout = 2 * time.Minute

// maxResponseBytes caps how much of a classifier answer is read.
const maxResponseBytes = 8 << 20

var errNoEntities = errors.New("classifier answer contains no entity object")

// Client calls the classifier's /classify endpoint. It is safe for
// concurrent use.
type Client struct {
	url  string
	http *http.Client
}

// New creates a client for the classifier at baseURL
// (e.g. "http://classifier:8001").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + "/classify",
		http: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type span struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Classify sends text to the classifier and returns the entities it found,
// keyed by entity text.
func (c *Client) Classify(ctx context.Context, text string) (content.EntityMap, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("classifier: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("classifier: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("classifier: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier: unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	entities, err := ParseAnswer(raw)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	slog.DebugContext(ctx, "classified text",
		"chars", len(text),
		"entities", len(entities),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return entities, nil
}

// ParseAnswer reads a classifier answer. It accepts {"entities": {...}},
// {"spans": [{"text", "label"}]} or a bare {text: token} object, and finds
// the outermost JSON object when the answer wraps it in other text.
func ParseAnswer(raw []byte) (content.EntityMap, error) {
	obj := raw
	if !json.Valid(bytes.TrimSpace(raw)) {
		start := bytes.IndexByte(raw, '{')
		end := bytes.LastIndexByte(raw, '}')
		if start < 0 || end <= start {
			return nil, errNoEntities
		}
		obj = raw[start : end+1]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}

	if v, ok := fields["entities"]; ok {
		var m map[string]string
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		return clean(m), nil
	}

	if v, ok := fields["spans"]; ok {
		var spans []span
		if err := json.Unmarshal(v, &spans); err != nil {
			return nil, fmt.Errorf("decode spans: %w", err)
		}
		m := make(map[string]string, len(spans))
		for _, s := range spans {
			if _, seen := m[s.Text]; !seen {
				m[s.Text] = Token(s.Label)
			}
		}
		return clean(m), nil
	}

	m := make(map[string]string, len(fields))
	for k, v := range fields {
		var token string
		if err := json.Unmarshal(v, &token); err != nil {
			return nil, fmt.Errorf("decode entity %q: %w", k, err)
		}
		m[k] = token
	}
	return clean(m), nil
}

// Token turns a classifier label into a bracketed replacement token.
func Token(label string) string {
	label = strings.TrimSpace(label)
	label = strings.Trim(label, "[]")
	if label == "" {
		label = "REDACTED"
	}
	return "[" + strings.ToUpper(strings.Join(strings.Fields(label), "_")) + "]"
}

// clean drops entries with blank text or replacement.
func clean(m map[string]string) content.EntityMap {
	out := make(content.EntityMap, len(m))
	for k, v := range m {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
