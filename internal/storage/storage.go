package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	JournalBucket  = []byte("journal")
	MetadataBucket = []byte("metadata")
)

var ErrNotFound = errors.New("not found")

// MetaLastContentSHA holds the blob sha returned by the last accepted write.
const MetaLastContentSHA = "last_content_sha"

type Storage struct {
	db *bolt.DB
}

// JournalEntry is one message this agent posted, chained to the entry
// before it.
type JournalEntry struct {
	Agent        string    `json:"agent"`
	SequenceNum  uint64    `json:"sequence_num"`
	MessageID    string    `json:"message_id"`
	Proof        string    `json:"proof"`
	Timestamp    string    `json:"timestamp"`
	DataHash     string    `json:"data_hash"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
	CommitSHA    string    `json:"commit_sha"`
	ContentSHA   string    `json:"content_sha"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func New(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{JournalBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Each agent's entries live in their own bucket under JournalBucket, so
// no agent name can match another agent's keys.
func agentBucket(tx *bolt.Tx, agent string) *bolt.Bucket {
	return tx.Bucket(JournalBucket).Bucket([]byte(agent))
}

// Zero-padded so that byte order in the bucket is sequence order.
func entryKey(seqNum uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seqNum))
}

func (s *Storage) SaveJournalEntry(entry *JournalEntry) error {
	if entry.Agent == "" {
		return fmt.Errorf("journal entry has no agent")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(JournalBucket).CreateBucketIfNotExists([]byte(entry.Agent))
		if err != nil {
			return fmt.Errorf("failed to create journal bucket for %s: %w", entry.Agent, err)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}

		return bucket.Put(entryKey(entry.SequenceNum), data)
	})
}

func (s *Storage) GetJournalEntry(agent string, seqNum uint64) (*JournalEntry, error) {
	var entry JournalEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		var data []byte
		if bucket := agentBucket(tx, agent); bucket != nil {
			data = bucket.Get(entryKey(seqNum))
		}
		if data == nil {
			return fmt.Errorf("journal entry %s:%d: %w", agent, seqNum, ErrNotFound)
		}

		return json.Unmarshal(data, &entry)
	})

	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (s *Storage) GetLatestJournalEntry(agent string) (*JournalEntry, error) {
	var latestEntry *JournalEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := agentBucket(tx, agent)
		if bucket == nil {
			return nil
		}

		k, v := bucket.Cursor().Last()
		if k == nil {
			return nil
		}

		var entry JournalEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal journal entry %s:%s: %w", agent, k, err)
		}
		latestEntry = &entry
		return nil
	})

	if err != nil {
		return nil, err
	}

	if latestEntry == nil {
		return nil, fmt.Errorf("no journal entries for agent %s: %w", agent, ErrNotFound)
	}

	return latestEntry, nil
}

// ListJournalEntries returns an agent's entries in sequence order.
func (s *Storage) ListJournalEntries(agent string) ([]*JournalEntry, error) {
	entries := make([]*JournalEntry, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := agentBucket(tx, agent)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var entry JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal journal entry %s:%s: %w", agent, k, err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})

	return entries, err
}

func (s *Storage) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Storage) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(MetadataBucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key %s: %w", key, ErrNotFound)
		}
		value = string(data)
		return nil
	})

	return value, err
}
