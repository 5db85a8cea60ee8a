package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aichat/chatpost/internal/chatlog"
	"github.com/aichat/chatpost/internal/hash"
	"github.com/aichat/chatpost/internal/storage"
	"github.com/aichat/chatpost/internal/verify"
)

// fakeGitHub serves a single file through the contents API and enforces
// the sha check on writes.
type fakeGitHub struct {
	mu       sync.Mutex
	content  []byte
	sha      string
	writes   int
	requests int
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"sha":      f.sha,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(f.content),
		})
	case http.MethodPut:
		var body struct {
			Content []byte `json:"content"`
			SHA     string `json:"sha"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.SHA != f.sha {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"does not match"}`))
			return
		}
		f.writes++
		f.content = body.Content
		f.sha = fmt.Sprintf("blob-%d", f.writes)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": map[string]string{"sha": f.sha},
			"commit":  map[string]string{"sha": fmt.Sprintf("commit-%d", f.writes)},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type cliEnv struct {
	remote  *fakeGitHub
	config  string
	dataDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	remote := &fakeGitHub{content: []byte(`{"messages": []}`), sha: "abc123"}
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	configContent := fmt.Sprintf(`
github:
  token: test-token
  owner: owner
  repo: repo
  path: aichat/messages.json
  api_url: %s

agent:
  name: LYRA

post:
  timeout: 5s
  max_retries: 0

journal:
  enabled: true
  data_dir: %s

log:
  level: error
`, srv.URL, dataDir)

	configPath := filepath.Join(dir, "chatpost.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatal(err)
	}

	return &cliEnv{remote: remote, config: configPath, dataDir: dataDir}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", e.config))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestPostWithoutTextPrintsUsage(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "post")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit code 0, got %d (%v)", code, err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Errorf("expected usage text, got %q", out)
	}
	if env.remote.requests != 0 {
		t.Errorf("expected no network activity, got %d requests", env.remote.requests)
	}
}

func TestPostWhitespaceTextIsInvalidInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "post", "   ", "\t")
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d (%v)", code, err)
	}
	if env.remote.requests != 0 {
		t.Errorf("expected no network activity, got %d requests", env.remote.requests)
	}
}

func TestPostAppendsAndJournals(t *testing.T) {
	env := newCLIEnv(t)

	if _, err := env.run(t, "post", "hello", "world"); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	l, err := chatlog.Unmarshal(env.remote.content)
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := l.Messages()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello world" || msgs[0].Agent != "LYRA" {
		t.Fatalf("unexpected remote log %+v", msgs)
	}

	store, err := storage.New(filepath.Join(env.dataDir, "chatpost.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	entry, err := store.GetJournalEntry("LYRA", 1)
	if err != nil {
		t.Fatalf("expected journal entry: %v", err)
	}
	if entry.MessageID != msgs[0].ID || entry.CommitSHA != "commit-1" {
		t.Errorf("unexpected journal entry %+v", entry)
	}
}

func TestVerifyDetectsTamperedJournal(t *testing.T) {
	env := newCLIEnv(t)

	for _, text := range []string{"first", "second"} {
		if _, err := env.run(t, "post", text); err != nil {
			t.Fatalf("post failed: %v", err)
		}
	}

	if _, err := env.run(t, "verify"); err != nil {
		t.Fatalf("verify of an untouched journal failed: %v", err)
	}

	store, err := storage.New(filepath.Join(env.dataDir, "chatpost.db"))
	if err != nil {
		t.Fatal(err)
	}
	entry, err := store.GetJournalEntry("LYRA", 1)
	if err != nil {
		t.Fatal(err)
	}
	entry.DataHash = hash.CalculateString("rewritten")
	if err := store.SaveJournalEntry(entry); err != nil {
		t.Fatal(err)
	}
	store.Close()

	_, err = env.run(t, "verify")
	if code := exitCode(err); code != 7 {
		t.Fatalf("expected exit code 7, got %d (%v)", code, err)
	}
	if ie := verify.AsIntegrityError(err); ie == nil || ie.Scope != verify.ScopeJournal {
		t.Errorf("expected a journal integrity error first, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 16); got != "abc" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("0123456789abcdef0123", 16); got != "0123456789abcdef" {
		t.Errorf("truncate() = %q", got)
	}
}
