package verify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aichat/chatpost/internal/chatlog"
	"github.com/aichat/chatpost/internal/hash"
	"github.com/aichat/chatpost/internal/storage"
)

const (
	ScopeJournal    = "local journal"
	ScopeCrossCheck = "journal vs remote log"
)

// Journal is the local hash-chained record of what one agent posted.
type Journal struct {
	storage *storage.Storage
	agent   string
	chain   *hash.HashChain
	nextSeq uint64
	logger  *slog.Logger
}

func NewJournal(store *storage.Storage, agent string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		storage: store,
		agent:   agent,
		logger:  logger,
	}

	latest, err := store.GetLatestJournalEntry(agent)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		j.chain = hash.NewHashChain(hash.Genesis)
		j.nextSeq = 1
	case err != nil:
		return nil, fmt.Errorf("failed to load journal head: %w", err)
	default:
		j.chain = hash.NewHashChain(latest.Hash)
		j.nextSeq = latest.SequenceNum + 1
	}

	return j, nil
}

// Record appends msg to the chain. It satisfies poster.Recorder.
func (j *Journal) Record(msg chatlog.Message, commitSHA, contentSHA string) error {
	previousHash := j.chain.GetPreviousHash()

	dataHash, newHash, err := j.chain.Add(msg)
	if err != nil {
		return fmt.Errorf("failed to add to hash chain: %w", err)
	}

	entry := &storage.JournalEntry{
		Agent:        j.agent,
		SequenceNum:  j.nextSeq,
		MessageID:    msg.ID,
		Proof:        msg.Proof,
		Timestamp:    msg.Timestamp,
		DataHash:     dataHash,
		PreviousHash: previousHash,
		Hash:         newHash,
		CommitSHA:    commitSHA,
		ContentSHA:   contentSHA,
		RecordedAt:   time.Now().UTC(),
	}

	if err := j.storage.SaveJournalEntry(entry); err != nil {
		j.chain.SetPreviousHash(previousHash)
		return err
	}
	j.nextSeq++

	if contentSHA != "" {
		if err := j.storage.SetMetadata(storage.MetaLastContentSHA, contentSHA); err != nil {
			j.logger.Warn("Failed to store last content sha", "error", err)
		}
	}

	j.logger.Debug("Journal entry recorded", "seq", entry.SequenceNum, "id", msg.ID, "hash", newHash)
	return nil
}

// Verify walks the chain from genesis, recomputing every link.
func (j *Journal) Verify() error {
	entries, err := j.storage.ListJournalEntries(j.agent)
	if err != nil {
		return fmt.Errorf("failed to list journal: %w", err)
	}

	var violations []Violation
	previous := hash.Genesis

	for i, entry := range entries {
		expectedSeq := uint64(i + 1)
		if entry.SequenceNum != expectedSeq {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: fmt.Sprintf("sequence gap: expected %d, got %d", expectedSeq, entry.SequenceNum)})
		}
		if entry.PreviousHash != previous {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: fmt.Sprintf("hash chain broken: expected previous %s, got %s", previous, entry.PreviousHash)})
		}
		if want := hash.Link(entry.PreviousHash, entry.DataHash); entry.Hash != want {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: fmt.Sprintf("entry hash %s does not match its contents", entry.Hash)})
		}
		previous = entry.Hash
	}

	if len(violations) > 0 {
		return NewIntegrityError(ScopeJournal, violations)
	}
	return nil
}

// CrossCheck reports journaled messages that are missing from, or altered
// in, the remote log. A message this agent posted must stay in the log
// with the same proof and content hash.
func (j *Journal) CrossCheck(messages []chatlog.Message) ([]Violation, error) {
	entries, err := j.storage.ListJournalEntries(j.agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}

	byID := make(map[string]chatlog.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}

	var violations []Violation
	for i, entry := range entries {
		m, ok := byID[entry.MessageID]
		if !ok {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: "posted message missing from remote log"})
			continue
		}
		if m.Proof != entry.Proof {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: fmt.Sprintf("proof changed from %s to %s", entry.Proof, m.Proof)})
			continue
		}
		dataHash, err := m.Hash()
		if err != nil {
			return nil, err
		}
		if dataHash != entry.DataHash {
			violations = append(violations, Violation{Index: i, MessageID: entry.MessageID,
				Reason: "message content changed after posting"})
		}
	}

	return violations, nil
}

// Entries lists the journal in sequence order.
func (j *Journal) Entries() ([]*storage.JournalEntry, error) {
	return j.storage.ListJournalEntries(j.agent)
}

// Head returns the newest entry, or nil for an empty journal.
func (j *Journal) Head() (*storage.JournalEntry, error) {
	latest, err := j.storage.GetLatestJournalEntry(j.agent)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return latest, err
}
