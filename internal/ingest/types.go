package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Batch is one page exactly as the API returned it. The value is normally an
// array of article records but any JSON value is accepted and stored verbatim.
type Batch json.RawMessage

// Empty reports whether the page ends pagination: a missing body or a JSON
// null, false, 0, "", [] or {}.
func (b Batch) Empty() bool {
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// Articles returns the number of records when the page is a JSON array and 0
// for any other value.
func (b Batch) Articles() int {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return 0
	}
	return len(items)
}

// Fetcher loads a single page of article metadata.
type Fetcher interface {
	FetchPage(ctx context.Context, perPage, page int) (Batch, error)
}

// Publisher pushes upload notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder persists the outcome of a run.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary Summary, runErr error) error
}

// ProbePolicy decides what a failed existence check means.
type ProbePolicy string

const (
	// ProbeFailOpen treats a failed probe as "blob does not exist".
	ProbeFailOpen ProbePolicy = "fail_open"
	// ProbeFailClosed aborts the run when a probe fails.
	ProbeFailClosed ProbePolicy = "fail_closed"
)

// Valid reports whether p names a known policy.
func (p ProbePolicy) Valid() bool {
	return p == ProbeFailOpen || p == ProbeFailClosed
}

var (
	// ErrProbeFailed is returned by Run when the existence check fails under ProbeFailClosed.
	ErrProbeFailed = errors.New("existence probe failed")
	// ErrInvalidConfig signals a Config that cannot drive a run.
	ErrInvalidConfig = errors.New("invalid ingest config")
)

// Config is the explicit configuration handed to the driver at startup.
type Config struct {
	// Project and Bucket only appear in log lines; the store owns the real target.
	Project     string
	Bucket      string
	KeyPrefix   string
	PerPage     int
	StartPage   int
	ProbePolicy ProbePolicy
	// Topic is passed through to the Publisher when one is configured.
	Topic string
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.StartPage == 0 {
		c.StartPage = 1
	}
	if c.ProbePolicy == "" {
		c.ProbePolicy = ProbeFailOpen
	}
	return c
}

// Validate checks the values Run depends on.
func (c Config) Validate() error {
	if c.PerPage <= 0 {
		return fmt.Errorf("%w: per_page must be > 0", ErrInvalidConfig)
	}
	if c.StartPage < 1 {
		return fmt.Errorf("%w: start_page must be >= 1", ErrInvalidConfig)
	}
	if !c.ProbePolicy.Valid() {
		return fmt.Errorf("%w: unknown probe policy %q", ErrInvalidConfig, c.ProbePolicy)
	}
	return nil
}

// PageUploaded is the notification payload published after each upload.
type PageUploaded struct {
	RunID    string `json:"run_id"`
	Page     int    `json:"page"`
	Key      string `json:"key"`
	URI      string `json:"uri"`
	Articles int    `json:"articles"`
}

// Summary reports what a run did.
type Summary struct {
	RunID            string    `json:"run_id"`
	StartPage        int       `json:"start_page"`
	StopPage         int       `json:"stop_page"`
	PagesUploaded    int       `json:"pages_uploaded"`
	PagesExisting    int       `json:"pages_existing"`
	ArticlesUploaded int       `json:"articles_uploaded"`
	FailedPages      []int     `json:"failed_pages"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}
