package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// webhookQueueSize is the bounded channel capacity for outbound alerts.
const webhookQueueSize = 256

// alertWebhook dispatches alerts to an external HTTP endpoint. Alerts are
// enqueued without blocking and sent by a background goroutine; when the
// queue is full they are dropped.
type alertWebhook struct {
	url        string
	authHeader string // "Header: Value"
	client     *http.Client
	retryDelay time.Duration
	events     chan AlertEvent
	wg         sync.WaitGroup
}

// newAlertWebhook creates a dispatcher and starts its background loop.
func newAlertWebhook(url, authHeader string) *alertWebhook {
	w := &alertWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		events:     make(chan AlertEvent, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// alert is an AlertFunc. It never blocks.
func (w *alertWebhook) alert(evt AlertEvent) {
	select {
	case w.events <- evt:
	default:
		slog.Warn("alert webhook: queue full, dropping alert", "type", evt.Type)
	}
}

// close shuts down the dispatcher, draining any queued alerts.
func (w *alertWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *alertWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs the alert with one retry on 5xx.
func (w *alertWebhook) send(evt AlertEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("alert webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			slog.Warn("alert webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "PostCraft-Alert-Webhook/1.0")

		if w.authHeader != "" {
			parts := strings.SplitN(w.authHeader, ":", 2)
			if len(parts) == 2 {
				req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
			}
		}

		resp, err := w.client.Do(req)
		if err != nil {
			slog.Warn("alert webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode >= 500 {
			slog.Warn("alert webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		slog.Warn("alert webhook: client error", "status", resp.StatusCode)
		return
	}
}
