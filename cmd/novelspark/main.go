// Command novelspark inspects a NovelSpark library from the terminal:
// list books (including the trash), search entity names, and show an
// entity's version history. The session hydrates from the configured
// sync backend on startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/config"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/relay"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
	"github.com/B2Gdevs/novel-spark-engine-sub000/pkg/mentions"
	"github.com/B2Gdevs/novel-spark-engine-sub000/pkg/versions"
)

var (
	flagVerbose bool
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:   "novelspark",
	Short: "Inspect a NovelSpark writing library",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(flagVerbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env", "", "path to .env file")
	rootCmd.AddCommand(booksCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionsCmd)
}

// session is the hydrated read-side wiring shared by all subcommands.
type session struct {
	cfg    *config.Config
	st     *store.ProjectStore
	ledger *versions.Ledger
	sup    *relay.Supervisor
}

func openSession(ctx context.Context) (*session, error) {
	cfg := config.Load(flagEnvFile)
	if cfg.Verbose {
		logger.SetVerbose(true)
	}

	var r relay.Relay
	switch cfg.SyncBackend {
	case config.BackendSQLite:
		sq, err := relay.NewSQLiteRelay(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		r = sq
	case config.BackendMongo:
		mg, err := relay.NewMongoRelay(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		r = mg
	case config.BackendNone:
		// local-only session
	}

	st := store.NewProjectStore()
	sup := relay.NewSupervisor(r, func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	})
	ledger := versions.NewLedger(st, sup)
	sup.Hydrate(ctx, st, func(vs []*store.EntityVersion) {
		ledger.Hydrate(vs)
	})
	return &session{cfg: cfg, st: st, ledger: ledger, sup: sup}, nil
}

func (s *session) close() {
	if err := s.sup.Close(); err != nil {
		logger.Warn("closing relay: %v", err)
	}
}

// =============================================================================
// books
// =============================================================================

var booksDeleted bool

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "List books in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		books := s.st.Books()
		if booksDeleted {
			books = s.st.DeletedBooks()
		}
		if len(books) == 0 {
			cmd.Println("No books.")
			return nil
		}
		for _, b := range books {
			cmd.Printf("%s  %s", b.ID, b.Title)
			if b.Genre != "" {
				cmd.Printf("  (%s)", b.Genre)
			}
			if b.Deleted {
				cmd.Printf("  [deleted %s]", time.UnixMilli(b.DeletedAt).Format("2006-01-02"))
			}
			cmd.Println()
		}
		return nil
	},
}

func init() {
	booksCmd.Flags().BoolVar(&booksDeleted, "deleted", false, "list trashed books instead")
}

// =============================================================================
// search
// =============================================================================

var (
	searchKind     string
	searchAllBooks bool
)

var searchCmd = &cobra.Command{
	Use:   "search [partial-name]",
	Short: "Search entity names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		var kinds []store.EntityKind
		if searchKind != "" {
			kind, ok := store.ParseKind(searchKind)
			if !ok {
				return fmt.Errorf("unknown entity kind %q", searchKind)
			}
			kinds = []store.EntityKind{kind}
		}

		// a one-shot CLI session has no current book, so default to all
		res := mentions.NewResolver(s.st)
		cands := res.Search(args[0], kinds, searchAllBooks)
		if len(cands) == 0 {
			cmd.Println("No matches.")
			return nil
		}
		for _, c := range cands {
			cmd.Printf("%-10s %s  (%s)", c.Kind, c.Name, c.BookTitle)
			if c.Description != "" {
				cmd.Printf("  %s", c.Description)
			}
			cmd.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchKind, "kind", "k", "", "restrict to one entity kind")
	searchCmd.Flags().BoolVar(&searchAllBooks, "all-books", true, "search every book")
}

// =============================================================================
// versions
// =============================================================================

var versionsCmd = &cobra.Command{
	Use:   "versions [kind] [entity-id]",
	Short: "Show an entity's version history, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		kind, ok := store.ParseKind(args[0])
		if !ok {
			return fmt.Errorf("unknown entity kind %q", args[0])
		}
		history := s.ledger.List(kind, args[1])
		if len(history) == 0 {
			return errors.New("no versions recorded for that entity")
		}
		for _, v := range history {
			when := time.UnixMilli(v.CreatedAt).Format(time.RFC3339)
			cmd.Printf("%s  %s  %s  %s\n", v.ID, when, v.Description, v.Snapshot.DisplayName())
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
