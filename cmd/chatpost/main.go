package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aichat/chatpost/internal/alert"
	"github.com/aichat/chatpost/internal/archive"
	"github.com/aichat/chatpost/internal/chatlog"
	"github.com/aichat/chatpost/internal/config"
	"github.com/aichat/chatpost/internal/github"
	"github.com/aichat/chatpost/internal/poster"
	"github.com/aichat/chatpost/internal/storage"
	"github.com/aichat/chatpost/internal/verify"
)

const version = "v0.1.0"

var (
	cfgFile  string
	showLast int
)

var rootCmd = &cobra.Command{
	Use:           "chatpost",
	Short:         "Append messages to a shared chat log on GitHub",
	Long:          `Posts agent messages to a JSON chat log stored in a GitHub repository, using the file sha for optimistic concurrency`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "chatpost.yaml", "config file path")
	showCmd.Flags().IntVarP(&showLast, "last", "n", 20, "number of messages to print")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chatpost %s\n", version)
		fmt.Println("Append-only chat log poster")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local journal database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		if !cfg.Journal.Enabled {
			fmt.Println("Journal is disabled (journal.enabled=false), nothing to initialize")
			return nil
		}

		store, err := openStore(cfg, true)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("Initialized journal for agent: %s\n", cfg.Agent.Name)
		fmt.Printf("Data directory: %s\n", cfg.Journal.DataDir)
		fmt.Printf("Database path: %s\n", cfg.Journal.JournalPath())
		return nil
	},
}

var postCmd = &cobra.Command{
	Use:   "post <message...>",
	Short: "Append a message to the chat log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Usage()
		}
		text := strings.Join(args, " ")

		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		opts := []poster.Option{
			poster.WithLogger(logger),
			poster.WithAlerter(alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)),
		}
		if cfg.Journal.Enabled {
			store, err := openStore(cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()

			journal, err := verify.NewJournal(store, cfg.Agent.Name, logger)
			if err != nil {
				return err
			}
			opts = append(opts, poster.WithRecorder(journal))
		}

		p, err := newPoster(cfg, opts...)
		if err != nil {
			return err
		}

		res, err := p.Post(ctx, text)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Message posted as %s (proof: %s)\n", res.Message.Agent, res.Proof)
		fmt.Printf("   id: %s, log length: %d, attempts: %d\n", res.Message.ID, res.LogLength, res.Attempts)
		fmt.Printf("   View at: %s\n", res.ViewerURL)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the most recent messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		p, err := newPoster(cfg, poster.WithLogger(logger))
		if err != nil {
			return err
		}

		snap, err := p.Fetch(ctx)
		if err != nil {
			return err
		}

		msgs := decodable(snap.Log, logger)
		if len(msgs) == 0 {
			fmt.Println("No messages yet")
			return nil
		}

		start := 0
		if showLast > 0 && len(msgs) > showLast {
			start = len(msgs) - showLast
		}
		for _, m := range msgs[start:] {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Agent, m.Text)
		}
		fmt.Printf("\n%d of %d messages (sha %s)\n", len(msgs)-start, snap.Log.Len(), truncate(snap.SHA, 7))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify message proofs and the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		alerts := alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)

		p, err := newPoster(cfg, poster.WithLogger(logger))
		if err != nil {
			return err
		}

		snap, err := p.Fetch(ctx)
		if err != nil {
			return err
		}

		var failures []error
		report := func(ie *verify.IntegrityError) {
			fmt.Printf("  ❌ FAILED: %d problem(s)\n", len(ie.Violations))
			for _, v := range ie.Violations {
				fmt.Printf("     - %s\n", v)
			}
			if err := alerts.SendIntegrityAlert(ctx, ie.Scope, len(ie.Violations), ie.Error()); err != nil {
				logger.Warn("Failed to send integrity alert", "error", err)
			}
			failures = append(failures, ie)
		}

		fmt.Printf("Verifying remote log: %s/%s/%s (%d messages)\n",
			cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Path, snap.Log.Len())
		if err := verify.VerifyLog(snap.Log); err != nil {
			report(verify.AsIntegrityError(err))
		} else {
			fmt.Println("  ✅ OK: all proofs match")
		}

		if cfg.Journal.Enabled {
			store, err := openStore(cfg, false)
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Println("No local journal, skipping journal checks")
			case err != nil:
				return err
			default:
				defer store.Close()

				journal, err := verify.NewJournal(store, cfg.Agent.Name, logger)
				if err != nil {
					return err
				}

				fmt.Printf("Verifying journal: %s\n", cfg.Journal.JournalPath())
				if err := journal.Verify(); err != nil {
					ie := verify.AsIntegrityError(err)
					if ie == nil {
						return err
					}
					report(ie)
				} else {
					fmt.Println("  ✅ OK: hash chain is intact")
				}

				fmt.Println("Cross-checking journal against remote log")
				violations, err := journal.CrossCheck(decodable(snap.Log, logger))
				if err != nil {
					return err
				}
				if len(violations) > 0 {
					report(verify.NewIntegrityError(verify.ScopeCrossCheck, violations))
				} else {
					fmt.Println("  ✅ OK: every posted message is present and unchanged")
				}
			}
		}

		return errors.Join(failures...)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List messages recorded in the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if !cfg.Journal.Enabled {
			fmt.Println("Journal is disabled")
			return nil
		}

		store, err := openStore(cfg, false)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No journal yet. Run 'chatpost init' or post a message first")
			return nil
		}
		if err != nil {
			return err
		}
		defer store.Close()

		journal, err := verify.NewJournal(store, cfg.Agent.Name, logger)
		if err != nil {
			return err
		}

		entries, err := journal.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("No messages recorded for %s\n", cfg.Agent.Name)
			return nil
		}

		for _, e := range entries {
			fmt.Printf("#%-4d %s  %s  proof %s  commit %s\n",
				e.SequenceNum, e.Timestamp, e.MessageID, e.Proof, truncate(e.CommitSHA, 7))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and journal status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		fmt.Printf("Agent: %s\n", cfg.Agent.Name)
		fmt.Printf("Repository: %s/%s (branch %s)\n", cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Branch)
		fmt.Printf("Log path: %s\n", cfg.GitHub.Path)
		fmt.Printf("Viewer: %s\n", cfg.GitHub.ViewerLink())
		fmt.Printf("Retries on conflict: %d, request timeout: %s\n", cfg.Post.MaxRetries, cfg.Post.Timeout)
		fmt.Printf("Alerts: %t\n", cfg.Alerts.Enabled)

		if !cfg.Journal.Enabled {
			fmt.Println("\nJournal: disabled")
			return nil
		}

		fmt.Printf("\nJournal: %s\n", cfg.Journal.JournalPath())
		store, err := openStore(cfg, false)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("  Not initialized")
			return nil
		}
		if err != nil {
			return err
		}
		defer store.Close()

		journal, err := verify.NewJournal(store, cfg.Agent.Name, logger)
		if err != nil {
			return err
		}

		head, err := journal.Head()
		if err != nil {
			return err
		}
		if head == nil {
			fmt.Println("  No entries yet")
			return nil
		}
		fmt.Printf("  Latest sequence: %d\n", head.SequenceNum)
		fmt.Printf("  Latest message: %s\n", head.MessageID)
		fmt.Printf("  Latest hash: %s\n", truncate(head.Hash, 16))
		if sha, err := store.GetMetadata(storage.MetaLastContentSHA); err == nil {
			fmt.Printf("  Last content sha: %s\n", sha)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the remote log into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Archive.DatabaseURL == "" {
			return fmt.Errorf("archive.database_url is required for sync")
		}

		ctx, stop := signalContext()
		defer stop()

		p, err := newPoster(cfg, poster.WithLogger(logger))
		if err != nil {
			return err
		}

		snap, err := p.Fetch(ctx)
		if err != nil {
			return err
		}

		arch, err := archive.Open(ctx, cfg.Archive.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer arch.Close(context.Background())

		inserted, err := arch.Sync(ctx, decodable(snap.Log, logger))
		if err != nil {
			return err
		}
		total, err := arch.Count(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Synced %d new message(s), %d archived in total\n", inserted, total)
		return nil
	},
}

// setup loads the config and installs the run's logger as the default.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log).With("run_id", uuid.NewString())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newPoster(cfg *config.Config, opts ...poster.Option) (*poster.Poster, error) {
	client, err := github.NewClient(cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo,
		github.WithBaseURL(cfg.GitHub.APIURL),
		github.WithUserAgent("chatpost/"+version))
	if err != nil {
		return nil, err
	}

	return poster.New(client, poster.Config{
		Agent:      cfg.Agent.Name,
		Path:       cfg.GitHub.Path,
		Branch:     cfg.GitHub.Branch,
		ViewerURL:  cfg.GitHub.ViewerLink(),
		Timeout:    cfg.Post.Timeout,
		MaxRetries: cfg.Post.MaxRetries,
	}, opts...)
}

// openStore opens the journal database. Unless create is set, a missing
// file is reported as os.ErrNotExist instead of being created.
func openStore(cfg *config.Config, create bool) (*storage.Storage, error) {
	path := cfg.Journal.JournalPath()
	if create {
		if err := os.MkdirAll(cfg.Journal.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	store, err := storage.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return store, nil
}

// decodable returns the records that decode as messages, logging the rest.
func decodable(l *chatlog.Log, logger *slog.Logger) []chatlog.Message {
	msgs := make([]chatlog.Message, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		m, err := l.Message(i)
		if err != nil {
			logger.Warn("Skipping undecodable record", "index", i, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", describe(err))
		os.Exit(exitCode(err))
	}
}
