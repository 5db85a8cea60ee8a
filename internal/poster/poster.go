// Package poster appends messages to the remote chat log using the
// contents API's sha check for optimistic concurrency.
package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aichat/chatpost/internal/chatlog"
	"github.com/aichat/chatpost/internal/github"
)

// ContentStore is the remote side of a read-modify-write cycle.
type ContentStore interface {
	GetFile(ctx context.Context, path, ref string) (*github.File, error)
	UpdateFile(ctx context.Context, path string, req *github.UpdateFileRequest) (*github.UpdateFileResponse, error)
}

// Recorder keeps a local record of committed posts.
type Recorder interface {
	Record(msg chatlog.Message, commitSHA, contentSHA string) error
}

// Alerter is notified when a post finally fails, or when a committed post
// could not be journaled.
type Alerter interface {
	SendPostFailureAlert(ctx context.Context, agent, kind string, attempts int, details string) error
	SendSystemAlert(ctx context.Context, title, message, severity string) error
}

type Config struct {
	Agent     string
	Path      string
	Branch    string
	ViewerURL string
	// Timeout bounds each GET and each PUT separately. Zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of extra full cycles after a sha conflict.
	MaxRetries int
}

type Poster struct {
	store    ContentStore
	cfg      Config
	now      func() time.Time
	recorder Recorder
	alerter  Alerter
	logger   *slog.Logger
}

type Option func(*Poster)

func WithClock(now func() time.Time) Option {
	return func(p *Poster) { p.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(p *Poster) { p.recorder = r }
}

func WithAlerter(a Alerter) Option {
	return func(p *Poster) { p.alerter = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poster) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(store ContentStore, cfg Config, opts ...Option) (*Poster, error) {
	if strings.TrimSpace(cfg.Agent) == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if strings.Trim(cfg.Path, "/") == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}

	p := &Poster{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Snapshot is the remote log as of one fetch. SHA authorizes exactly one
// write of a document derived from Log.
type Snapshot struct {
	Log *chatlog.Log
	SHA string
}

// Result describes a committed post.
type Result struct {
	Message    chatlog.Message
	Proof      string
	ViewerURL  string
	CommitSHA  string
	ContentSHA string
	Attempts   int
	LogLength  int
}

// Fetch reads and decodes the current remote log.
func (p *Poster) Fetch(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	file, err := p.store.GetFile(ctx, p.cfg.Path, p.cfg.Branch)
	if err != nil {
		return nil, classify(err, KindRemoteFetch)
	}

	if file.Encoding != "" && file.Encoding != "base64" {
		return nil, newError(KindDecode, &chatlog.DecodeError{
			Stage: chatlog.StageBase64,
			Err:   fmt.Errorf("unsupported content encoding %q", file.Encoding),
		})
	}

	log, err := chatlog.DecodeContent(file.Content)
	if err != nil {
		return nil, newError(KindDecode, err)
	}

	return &Snapshot{Log: log, SHA: file.SHA}, nil
}

// Post appends one message authored by the configured agent. A stale-sha
// rejection restarts the whole cycle from a fresh fetch, up to MaxRetries
// times; every other failure is returned as is.
func (p *Poster) Post(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newError(KindInvalidInput, errors.New("message text is empty"))
	}

	logger := p.logger.With("agent", p.cfg.Agent, "path", p.cfg.Path)

	var lastErr *Error
	for attempt := 1; attempt <= p.cfg.MaxRetries+1; attempt++ {
		res, err := p.attempt(ctx, text)
		if err == nil {
			res.Attempts = attempt
			logger.Info("Message appended",
				"id", res.Message.ID,
				"proof", res.Proof,
				"attempts", attempt,
				"commit", res.CommitSHA)
			p.record(ctx, logger, res)
			return res, nil
		}

		lastErr = err
		lastErr.Attempts = attempt
		if !err.Conflict || ctx.Err() != nil {
			break
		}
		logger.Warn("Write rejected with stale sha, refetching",
			"attempt", attempt,
			"max_retries", p.cfg.MaxRetries)
	}

	logger.Error("Post failed", "kind", lastErr.Kind.String(), "attempts", lastErr.Attempts, "error", lastErr.Err)
	if p.alerter != nil {
		if err := p.alerter.SendPostFailureAlert(ctx, p.cfg.Agent, lastErr.Kind.String(), lastErr.Attempts, lastErr.Err.Error()); err != nil {
			logger.Warn("Failed to send post failure alert", "error", err)
		}
	}
	return nil, lastErr
}

func (p *Poster) attempt(ctx context.Context, text string) (*Result, *Error) {
	snap, err := p.Fetch(ctx)
	if err != nil {
		return nil, AsError(err)
	}

	msg := chatlog.NewMessage(text, p.cfg.Agent, p.now())

	updated := snap.Log.Clone()
	if err := updated.Append(msg); err != nil {
		return nil, newError(KindDecode, err)
	}

	content, err := chatlog.Marshal(updated)
	if err != nil {
		return nil, newError(KindDecode, err)
	}

	wctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.store.UpdateFile(wctx, p.cfg.Path, &github.UpdateFileRequest{
		Message: CommitMessage(p.cfg.Agent, msg.Proof),
		Content: content,
		SHA:     snap.SHA,
		Branch:  p.cfg.Branch,
	})
	switch {
	case github.IsAcceptedUnreadable(err):
		// The commit exists; reporting a failure would invite a duplicate post.
		p.logger.Warn("Write accepted but response unreadable, commit and content sha unknown",
			"id", msg.ID, "error", err)
	case err != nil:
		return nil, classify(err, KindRemoteWrite)
	}
	if resp == nil {
		resp = &github.UpdateFileResponse{}
	}

	return &Result{
		Message:    msg,
		Proof:      msg.Proof,
		ViewerURL:  p.cfg.ViewerURL,
		CommitSHA:  resp.CommitSHA,
		ContentSHA: resp.ContentSHA,
		LogLength:  updated.Len(),
	}, nil
}

func (p *Poster) record(ctx context.Context, logger *slog.Logger, res *Result) {
	if p.recorder == nil {
		return
	}
	// The remote commit already happened; a journal failure is not a post failure.
	err := p.recorder.Record(res.Message, res.CommitSHA, res.ContentSHA)
	if err == nil {
		return
	}
	logger.Warn("Failed to record message in journal", "id", res.Message.ID, "error", err)

	if p.alerter != nil {
		detail := fmt.Sprintf("%s posted %s (proof %s) but the local journal could not record it: %v",
			p.cfg.Agent, res.Message.ID, res.Proof, err)
		if aerr := p.alerter.SendSystemAlert(ctx, "Journal write failed", detail, "warning"); aerr != nil {
			logger.Warn("Failed to send journal failure alert", "error", aerr)
		}
	}
}

func (p *Poster) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}

// CommitMessage is the commit description for a post.
func CommitMessage(agent, proof string) string {
	return fmt.Sprintf("AI Post: %s - Proof: %s", agent, proof)
}

// classify maps a content store error onto the taxonomy. statusKind is
// the kind used for HTTP-level rejections in the current phase.
func classify(err error, statusKind Kind) *Error {
	var te *github.TransportError
	if errors.As(err, &te) {
		return newError(KindTransport, err)
	}

	var se *github.StatusError
	if errors.As(err, &se) {
		e := newError(statusKind, err)
		e.StatusCode = se.StatusCode
		e.Conflict = statusKind == KindRemoteWrite && se.Conflict()
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindTransport, err)
	}

	return newError(statusKind, err)
}
