package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

func (m *Manager) active() bool {
	return m != nil && m.enabled && m.slackWebhook != ""
}

// SendPostFailureAlert reports a message that could not be appended.
func (m *Manager) SendPostFailureAlert(ctx context.Context, agent, kind string, attempts int, details string) error {
	if !m.active() {
		return nil
	}

	msg := slackMessage{
		Text: "⚠️ *CHAT POST FAILED*",
		Attachments: []slackAttachment{
			{
				Color: "warning",
				Title: "Message was not appended",
				Fields: []slackField{
					{Title: "Agent", Value: agent, Short: true},
					{Title: "Failure", Value: kind, Short: true},
					{Title: "Attempts", Value: fmt.Sprintf("%d", attempts), Short: true},
					{Title: "Details", Value: details, Short: false},
				},
				Footer: "chatpost",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(ctx, msg)
}

// SendIntegrityAlert reports verification failures on the remote log or
// the local journal.
func (m *Manager) SendIntegrityAlert(ctx context.Context, scope string, violations int, details string) error {
	if !m.active() {
		return nil
	}

	msg := slackMessage{
		Text: "🚨 *CHAT LOG INTEGRITY VIOLATION*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Append-only log verification failed",
				Fields: []slackField{
					{Title: "Scope", Value: scope, Short: true},
					{Title: "Violations", Value: fmt.Sprintf("%d", violations), Short: true},
					{Title: "Details", Value: details, Short: false},
				},
				Footer: "chatpost",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(ctx, msg)
}

func (m *Manager) SendSystemAlert(ctx context.Context, title, message, severity string) error {
	if !m.active() {
		return nil
	}

	color := "danger"
	if severity == "warning" {
		color = "warning"
	} else if severity == "good" {
		color = "good"
	}

	msg := slackMessage{
		Text: fmt.Sprintf("🚨 *SYSTEM ALERT: %s*", title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: []slackField{
					{Title: "Message", Value: message, Short: false},
				},
				Footer: "chatpost",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(ctx, msg)
}

func (m *Manager) sendSlackMessage(ctx context.Context, msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.slackWebhook, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
