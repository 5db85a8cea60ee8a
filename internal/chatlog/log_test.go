package chatlog

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestProof(t *testing.T) {
	tests := []struct {
		timestamp string
		agent     string
	}{
		{"2025-03-01T12:30:45.123456Z", "LYRA"},
		{"2024-12-31T23:59:59.000000Z", "Lightfather"},
		{"", ""},
		{"2025-01-01T00:00:00.000001Z", "agent with spaces ✨"},
	}

	for _, tt := range tests {
		t.Run(tt.agent, func(t *testing.T) {
			sum := sha256.Sum256([]byte(tt.timestamp + tt.agent))
			want := hex.EncodeToString(sum[:])[:8]

			got := Proof(tt.timestamp, tt.agent)
			if got != want {
				t.Errorf("Proof() = %s, want %s", got, want)
			}
			if again := Proof(tt.timestamp, tt.agent); again != got {
				t.Errorf("Proof is not deterministic: %s then %s", got, again)
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))

	msg := NewMessage("hello", "LYRA", at)

	if msg.Timestamp != "2025-03-01T11:30:45.123456Z" {
		t.Errorf("unexpected timestamp %s", msg.Timestamp)
	}
	if msg.ID != "2025-03-01T11-30-45.123456Z_LYRA" {
		t.Errorf("unexpected id %s", msg.ID)
	}
	if msg.Agent != "LYRA" || msg.Text != "hello" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Proof != Proof(msg.Timestamp, "LYRA") {
		t.Errorf("unexpected proof %s", msg.Proof)
	}
}

func TestFormatTimestampWholeSecond(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTimestamp(at); got != "2025-01-02T03:04:05.000000Z" {
		t.Errorf("FormatTimestamp() = %s", got)
	}
}

func TestAppendToEmptyLog(t *testing.T) {
	l, err := Unmarshal([]byte(`{"messages": []}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty log, got %d", l.Len())
	}

	msg := NewMessage("first", "LYRA", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := l.Append(msg); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := l.Messages()
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if diff := cmp.Diff([]Message{msg}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendKeepsExistingRecords(t *testing.T) {
	doc := `{
  "messages": [
    {"agent": "A", "id": "x", "extra": {"n": 1.50}, "text": "<hi>"},
    {"id": "y", "agent": "B", "text": "two", "timestamp": "t", "proof": "p"}
  ],
  "title": "AI chat"
}`
	l, err := Unmarshal([]byte(doc))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	before := []string{string(l.Raw(0)), string(l.Raw(1))}

	if err := l.Append(NewMessage("three", "C", time.Now())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	reparsed, err := Unmarshal(out)
	if err != nil {
		t.Fatalf("Unmarshal of output failed: %v", err)
	}
	if reparsed.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", reparsed.Len())
	}

	for i, raw := range before {
		if compact(t, raw) != compact(t, string(reparsed.Raw(i))) {
			t.Errorf("record %d changed:\nbefore %s\nafter  %s", i, raw, reparsed.Raw(i))
		}
	}

	if !strings.Contains(string(out), `"title": "AI chat"`) {
		t.Errorf("top-level keys should be preserved, got:\n%s", out)
	}
	if !strings.Contains(string(out), `"text": "<hi>"`) {
		t.Errorf("HTML characters should not be escaped, got:\n%s", out)
	}
}

func TestMarshalCanonical(t *testing.T) {
	l := NewLog()
	msg := Message{ID: "i", Agent: "a", Text: "t", Timestamp: "ts", Proof: "p"}
	if err := l.Append(msg); err != nil {
		t.Fatal(err)
	}

	out, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{
  "messages": [
    {
      "id": "i",
      "agent": "a",
      "text": "t",
      "timestamp": "ts",
      "proof": "p"
    }
  ]
}`
	if string(out) != want {
		t.Errorf("Marshal() =\n%s\nwant\n%s", out, want)
	}
}

func TestContentRoundTrip(t *testing.T) {
	l := NewLog()
	for i, text := range []string{"hello", "ünïcödé & <tags>", "multi\nline"} {
		at := time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC)
		if err := l.Append(NewMessage(text, "LYRA", at)); err != nil {
			t.Fatal(err)
		}
	}

	data, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	decoded, err := DecodeContent(encoded)
	if err != nil {
		t.Fatalf("DecodeContent failed: %v", err)
	}

	redata, err := Marshal(decoded)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	reencoded := base64.StdEncoding.EncodeToString(redata)

	if reencoded != encoded {
		t.Errorf("round trip is not byte-identical:\n%s\n%s", encoded, reencoded)
	}
}

func TestDecodeContentWrappedBase64(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte(`{"messages":[{"id":"a"}]}`))

	var wrapped strings.Builder
	for i := 0; i < len(raw); i += 10 {
		end := i + 10
		if end > len(raw) {
			end = len(raw)
		}
		wrapped.WriteString(raw[i:end])
		wrapped.WriteString("\n")
	}

	l, err := DecodeContent(wrapped.String())
	if err != nil {
		t.Fatalf("DecodeContent failed: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 record, got %d", l.Len())
	}
}

func TestDecodeContentErrors(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		content string
		stage   string
	}{
		{name: "bad base64", content: "!!!not-base64!!!", stage: StageBase64},
		{name: "invalid utf8", content: base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, '{', '}'}), stage: StageUTF8},
		{name: "invalid json", content: enc(`{"messages": [`), stage: StageJSON},
		{name: "not an object", content: enc(`[1,2,3]`), stage: StageJSON},
		{name: "missing messages", content: enc(`{"msgs": []}`), stage: StageSchema},
		{name: "null messages", content: enc(`{"messages": null}`), stage: StageSchema},
		{name: "messages not array", content: enc(`{"messages": "nope"}`), stage: StageSchema},
		{name: "record not object", content: enc(`{"messages": [42]}`), stage: StageSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeContent(tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			de, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
			if de.Stage != tt.stage {
				t.Errorf("expected stage %s, got %s (%v)", tt.stage, de.Stage, err)
			}
			if !IsDecodeError(err) {
				t.Error("IsDecodeError should report true")
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewLog()
	if err := l.Append(NewMessage("one", "A", time.Now())); err != nil {
		t.Fatal(err)
	}

	c := l.Clone()
	if err := c.Append(NewMessage("two", "A", time.Now())); err != nil {
		t.Fatal(err)
	}

	if l.Len() != 1 || c.Len() != 2 {
		t.Errorf("expected lengths 1 and 2, got %d and %d", l.Len(), c.Len())
	}
}

func compact(t *testing.T, s string) string {
	t.Helper()
	l, err := Unmarshal([]byte(`{"messages":[` + s + `]}`))
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	out, err := Marshal(l)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	return string(out)
}
