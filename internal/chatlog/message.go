// Package chatlog models the shared chat message log and its on-disk encoding.
package chatlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aichat/chatpost/internal/hash"
)

// TimestampLayout is UTC with microsecond precision and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// ProofLength is the number of hex characters kept from the proof digest.
const ProofLength = 8

// Message is a single chat log record. Field order matches the JSON key
// order written to the log.
type Message struct {
	ID        string `json:"id"`
	Agent     string `json:"agent"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Proof     string `json:"proof"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Proof is a correlation token for (timestamp, agent). It does not cover
// the message text.
func Proof(timestamp, agent string) string {
	return hash.Short(timestamp+agent, ProofLength)
}

func MessageID(timestamp, agent string) string {
	return strings.ReplaceAll(timestamp, ":", "-") + "_" + agent
}

// NewMessage builds the record an agent posts at the given instant.
func NewMessage(text, agent string, at time.Time) Message {
	ts := FormatTimestamp(at)
	return Message{
		ID:        MessageID(ts, agent),
		Agent:     agent,
		Text:      text,
		Timestamp: ts,
		Proof:     Proof(ts, agent),
	}
}

// Hash returns the SHA-256 of the message's canonical JSON encoding.
func (m Message) Hash() (string, error) {
	return hash.Calculate(m)
}

func marshalMessage(m Message) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to marshal message %s: %w", m.ID, err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
