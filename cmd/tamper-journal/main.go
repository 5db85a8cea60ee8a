// Command tamper-journal rewrites one entry of a chatpost journal so that
// `chatpost verify` can be shown to catch it. For testing only.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aichat/chatpost/internal/hash"
	"github.com/aichat/chatpost/internal/storage"
)

func main() {
	if len(os.Args) < 3 || len(os.Args) > 4 {
		fmt.Fprintf(os.Stderr, "Usage: %s <journal-db> <agent> [sequence]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Replaces the data hash of a journal entry (default: the first)\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]
	agent := os.Args[2]
	seq := uint64(1)
	if len(os.Args) == 4 {
		n, err := strconv.ParseUint(os.Args[3], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid sequence %q: %v\n", os.Args[3], err)
			os.Exit(1)
		}
		seq = n
	}

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entry, err := store.GetJournalEntry(agent, seq)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found entry %s (seq=%d)\n", entry.MessageID, entry.SequenceNum)
	fmt.Printf("  Original DataHash: %s\n", entry.DataHash)

	entry.DataHash = hash.CalculateString("tampered:" + entry.DataHash)

	if err := store.SaveJournalEntry(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save entry: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("  Tampered DataHash: %s\n", entry.DataHash)
	fmt.Println("✓ Journal entry rewritten; run `chatpost verify` to detect it")
}
