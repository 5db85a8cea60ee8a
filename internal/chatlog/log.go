package chatlog

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const messagesKey = "messages"

// Log is the append-only message document. Records already present are
// kept as raw JSON so a rewrite carries them through unchanged.
type Log struct {
	entries []json.RawMessage
	extra   map[string]json.RawMessage
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Append adds m after the last record.
func (l *Log) Append(m Message) error {
	raw, err := marshalMessage(m)
	if err != nil {
		return err
	}
	l.entries = append(l.entries, raw)
	return nil
}

// Raw returns the JSON of the record at index i.
func (l *Log) Raw(i int) json.RawMessage {
	return l.entries[i]
}

// Message decodes the record at index i.
func (l *Log) Message(i int) (Message, error) {
	var m Message
	if err := json.Unmarshal(l.entries[i], &m); err != nil {
		return Message{}, fmt.Errorf("record %d: %w", i, err)
	}
	return m, nil
}

// Messages decodes every record in order.
func (l *Log) Messages() ([]Message, error) {
	out := make([]Message, 0, len(l.entries))
	for i := range l.entries {
		m, err := l.Message(i)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Clone returns a copy whose record list can be appended to independently.
func (l *Log) Clone() *Log {
	c := &Log{entries: make([]json.RawMessage, len(l.entries))}
	copy(c.entries, l.entries)
	if l.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(l.extra))
		for k, v := range l.extra {
			c.extra[k] = v
		}
	}
	return c
}

// Marshal renders the log in canonical form: two-space indentation, no
// HTML escaping and no trailing newline. "messages" is written first and
// any other top-level keys follow in sorted order.
func Marshal(l *Log) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteString(`{"messages":[`)
	for i, e := range l.entries {
		if i > 0 {
			compact.WriteByte(',')
		}
		if err := json.Compact(&compact, e); err != nil {
			return nil, fmt.Errorf("failed to compact record %d: %w", i, err)
		}
	}
	compact.WriteByte(']')

	keys := make([]string, 0, len(l.extra))
	for k := range l.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal key %q: %w", k, err)
		}
		compact.WriteByte(',')
		compact.Write(name)
		compact.WriteByte(':')
		if err := json.Compact(&compact, l.extra[k]); err != nil {
			return nil, fmt.Errorf("failed to compact key %q: %w", k, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent log: %w", err)
	}
	return out.Bytes(), nil
}

// Unmarshal parses a log document. The document must be a JSON object
// whose "messages" key holds an array of objects.
func Unmarshal(data []byte) (*Log, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Stage: StageUTF8, Err: fmt.Errorf("content is not valid UTF-8")}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}

	rawMessages, ok := doc[messagesKey]
	if !ok {
		return nil, &DecodeError{Stage: StageSchema, Err: fmt.Errorf("missing %q field", messagesKey)}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawMessages, &entries); err != nil || entries == nil {
		if err == nil {
			err = fmt.Errorf("%q is null", messagesKey)
		}
		return nil, &DecodeError{Stage: StageSchema, Err: fmt.Errorf("%q is not an array: %w", messagesKey, err)}
	}

	for i, e := range entries {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			return nil, &DecodeError{Stage: StageSchema, Err: fmt.Errorf("record %d is not an object", i)}
		}
	}

	delete(doc, messagesKey)
	l := &Log{entries: entries}
	if len(doc) > 0 {
		l.extra = doc
	}
	return l, nil
}

// DecodeContent decodes the base64 content field of the contents API.
// Line breaks inside the payload are ignored.
func DecodeContent(encoded string) (*Log, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, &DecodeError{Stage: StageBase64, Err: err}
	}

	return Unmarshal(data)
}
