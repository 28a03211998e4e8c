// Package webhook delivers HTTP notifications for retention and export events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/complykit/audittrail/pkg/logging"
	"github.com/complykit/audittrail/pkg/model"
)

// EventType represents the type of trail event that can trigger webhooks.
type EventType string

const (
	EventDeletionReportCreated EventType = "deletion_report.created"
	EventCleanupCompleted      EventType = "cleanup.completed"
	EventExportGenerated       EventType = "export.generated"
	EventChainBroken           EventType = "chain.broken"
)

// Event is the payload sent to webhooks. It carries identifiers and counts
// only, never entry content.
type Event struct {
	Event     EventType      `json:"event"`
	Timestamp string         `json:"timestamp"`
	TenantID  string         `json:"tenant_id,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HookConfig represents a single webhook configuration.
type HookConfig struct {
	URL     string        `json:"url" yaml:"url"`
	Secret  string        `json:"secret,omitempty" yaml:"secret,omitempty"`
	Events  []EventType   `json:"events" yaml:"events"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Enabled bool          `json:"enabled" yaml:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig  `json:"hooks" yaml:"hooks"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size" yaml:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	log    *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a new webhook client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = DefaultConfig().AsyncQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    logging.WithFields(map[string]any{"component": "webhook"}),
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled {
		c.start()
	}

	return c
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l *logging.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
}

func (c *Client) logger() *logging.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

// worker processes queued notifications until Close.
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			for len(c.queue) > 0 {
				c.send(<-c.queue)
			}
			return
		case j := <-c.queue:
			c.send(j)
		}
	}
}

// Send sends an event to all matching webhooks.
// If async is true, the event is queued for background sending.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled || c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(event.Event)})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(j *job) {
	if err := c.sendSync(j); err != nil {
		c.logger().ErrorErr("webhook delivery failed", err, map[string]any{"event": string(j.event.Event), "url": j.hook.URL})
	}
}

// sendSync sends a webhook synchronously with retries.
func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		if err := c.post(j, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}

func (c *Client) post(j *job, payload []byte) error {
	ctx := context.Background()
	if j.hook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.hook.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.hook.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AuditTrail-Webhook/1.0")
	req.Header.Set("X-AuditTrail-Event", string(j.event.Event))
	if j.hook.Secret != "" {
		req.Header.Set("X-AuditTrail-Signature", Sign(payload, j.hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}

// Sign creates the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close drains queued notifications and stops the worker.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// SendDeletionReportCreated announces a signed deletion report.
func (c *Client) SendDeletionReportCreated(report model.DeletionReport) error {
	tenant := ""
	if report.TenantID != nil {
		tenant = *report.TenantID
	}
	return c.Send(Event{
		Event:     EventDeletionReportCreated,
		TenantID:  tenant,
		SubjectID: report.ID,
		Metadata: map[string]any{
			"data_category": report.DataCategory,
			"record_count":  report.RecordCount,
			"content_hash":  report.ContentHash,
		},
	}, true)
}

// SendCleanupCompleted announces the outcome of a non-dry-run cleanup.
func (c *Client) SendCleanupCompleted(result model.CleanupResult) error {
	return c.Send(Event{
		Event:     EventCleanupCompleted,
		SubjectID: result.RunID,
		Message:   result.ErrorMessage,
		Metadata: map[string]any{
			"records_identified": result.RecordsIdentified,
			"records_deleted":    result.RecordsDeleted,
			"reports":            len(result.DeletionReportIDs),
		},
	}, true)
}

// SendExportGenerated announces a tamper-evident export.
func (c *Client) SendExportGenerated(meta model.ExportMetadata) error {
	return c.Send(Event{
		Event:     EventExportGenerated,
		SubjectID: meta.ExportID,
		Metadata: map[string]any{
			"entry_count":      meta.EntryCount,
			"hash_chain_valid": meta.HashChainValid,
			"content_hash":     meta.ContentHash,
		},
	}, true)
}

// SendChainBroken announces a failed chain verification.
func (c *Client) SendChainBroken(subjectID, message string) error {
	return c.Send(Event{
		Event:     EventChainBroken,
		SubjectID: subjectID,
		Message:   message,
	}, true)
}
