package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crashcollector/collector/internal/crashreport"
)

// Webhook is a CrashPublish that POSTs an accepted-crash notification to a
// downstream URL. Retries are the pipeline's job (via CrashSubmission.Fail),
// so a single failed POST is simply reported as an error.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookBody struct {
	CrashID     string            `json:"crash_id"`
	ProducedAt  string            `json:"produced_at"`
	Annotations map[string]string `json:"annotations"`
	DumpNames   []string          `json:"dump_names"`
}

func (w *Webhook) Publish(ctx context.Context, submission *crashreport.CrashSubmission) error {
	names := make([]string, 0, len(submission.Dumps))
	for name := range submission.Dumps {
		names = append(names, name)
	}
	body := webhookBody{
		CrashID:     submission.CrashID,
		ProducedAt:  time.Now().UTC().Format(time.RFC3339),
		Annotations: submission.Annotations,
		DumpNames:   names,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("publish: marshal webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("publish: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("publish: webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publish: webhook status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.URL, nil)
	if err != nil {
		return fmt.Errorf("publish: new health request: %w", err)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("publish: webhook health: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
