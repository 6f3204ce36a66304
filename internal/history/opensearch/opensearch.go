package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/consolr/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) over its REST API.
// Each event is POSTed as one document to baseURL/index/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document is the flattened shape stored in the index.
type document struct {
	Event      history.EventType `json:"event"`
	OccurredAt time.Time         `json:"occurred_at"`
	Name       string            `json:"name"`
	RunID      string            `json:"run_id"`
	PID        int               `json:"pid"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	StoppedAt  *time.Time        `json:"stopped_at,omitempty"`
	ExitCode   int               `json:"exit_code"`
	Error      string            `json:"error,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	doc := document{
		Event:      e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		Name:       e.Record.Name,
		RunID:      e.Record.RunID,
		PID:        e.Record.PID,
		StartedAt:  timePtr(e.Record.StartedAt),
		StoppedAt:  timePtr(e.Record.StoppedAt),
		ExitCode:   e.Record.ExitCode,
		Error:      e.Record.Error,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode opensearch document: %w", err)
	}
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build opensearch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
