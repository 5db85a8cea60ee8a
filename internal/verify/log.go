package verify

import (
	"encoding/json"
	"fmt"

	"github.com/aichat/chatpost/internal/chatlog"
)

// ScopeRemoteLog names violations found in the shared message log.
const ScopeRemoteLog = "remote log"

// CheckLog checks every record's id and proof against its timestamp and
// agent and reports duplicate ids. Text is not covered by the proof and is
// not checked.
func CheckLog(l *chatlog.Log) []Violation {
	var violations []Violation
	seen := make(map[string]int)

	for i := 0; i < l.Len(); i++ {
		var m chatlog.Message
		if err := json.Unmarshal(l.Raw(i), &m); err != nil {
			violations = append(violations, Violation{Index: i, Reason: fmt.Sprintf("undecodable record: %v", err)})
			continue
		}

		switch {
		case m.ID == "" || m.Agent == "" || m.Timestamp == "" || m.Proof == "":
			violations = append(violations, Violation{Index: i, MessageID: m.ID, Reason: "missing id, agent, timestamp or proof"})
			continue
		case m.Proof != chatlog.Proof(m.Timestamp, m.Agent):
			violations = append(violations, Violation{Index: i, MessageID: m.ID,
				Reason: fmt.Sprintf("proof %s does not match timestamp and agent (want %s)", m.Proof, chatlog.Proof(m.Timestamp, m.Agent))})
		case m.ID != chatlog.MessageID(m.Timestamp, m.Agent):
			violations = append(violations, Violation{Index: i, MessageID: m.ID,
				Reason: fmt.Sprintf("id does not match timestamp and agent (want %s)", chatlog.MessageID(m.Timestamp, m.Agent))})
		}

		if first, dup := seen[m.ID]; dup {
			violations = append(violations, Violation{Index: i, MessageID: m.ID,
				Reason: fmt.Sprintf("duplicate of record #%d", first)})
		} else {
			seen[m.ID] = i
		}
	}

	return violations
}

// VerifyLog returns an *IntegrityError when CheckLog finds anything.
func VerifyLog(l *chatlog.Log) error {
	if violations := CheckLog(l); len(violations) > 0 {
		return NewIntegrityError(ScopeRemoteLog, violations)
	}
	return nil
}
