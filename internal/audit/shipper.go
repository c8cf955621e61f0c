// Package audit ships audit records to destinations outside the database.
//
// The database table (internal/db/repositories.AuditRepository) is the
// authoritative audit store; shippers are an additional copy for consumers
// with different retention needs, such as a SIEM fed over a webhook or a
// newline-delimited JSON file collected by a log agent. Shipping is best
// effort and must never block or fail a request.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// Entry is the wire form of an audit record.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Shipper sends an audit entry to a destination.
type Shipper interface {
	Ship(ctx context.Context, entry *Entry) error
	Close() error
}

// MultiShipper fans an entry out to every configured destination. A failing
// destination is logged and skipped; the others still receive the entry.
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper groups shippers behind a single Shipper.
func NewMultiShipper(shippers ...Shipper) *MultiShipper {
	return &MultiShipper{shippers: shippers}
}

// Ship sends the entry to all destinations.
func (ms *MultiShipper) Ship(ctx context.Context, entry *Entry) error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("audit shipper failed", "error", err)
		}
	}
	return lastErr
}

// Close closes all destinations.
func (ms *MultiShipper) Close() error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Len reports how many destinations are configured.
func (ms *MultiShipper) Len() int {
	return len(ms.shippers)
}

// WebhookShipper POSTs each entry as JSON to a fixed URL.
type WebhookShipper struct {
	url    string
	client *http.Client
}

// NewWebhookShipper creates a webhook shipper. timeout bounds each delivery
// attempt; zero means 10 seconds.
func NewWebhookShipper(url string, timeout time.Duration) *WebhookShipper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Ship POSTs the entry.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("send audit webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for the webhook shipper.
func (ws *WebhookShipper) Close() error {
	return nil
}

// FileShipper appends entries as newline-delimited JSON to a local file.
type FileShipper struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) the audit file for appending.
func NewFileShipper(path string) (*FileShipper, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	return &FileShipper{file: file}, nil
}

// Ship appends the entry as one JSON line.
func (fs *FileShipper) Ship(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
