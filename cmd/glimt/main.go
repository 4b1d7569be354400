package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glimt/glimt/internal/config"
	"github.com/glimt/glimt/pkg/migrate"
	"github.com/glimt/glimt/pkg/notes"
	"github.com/glimt/glimt/pkg/search"
	"github.com/glimt/glimt/pkg/store"
)

var (
	cfg     config.Config
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "glimt",
	Short:         "Capture ideas and find them again",
	Long:          `A local idea store with keyword and semantic search over SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		if !cmd.Flags().Changed("db") {
			dbPath = cfg.DBPath
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database or bring its schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Database ready at %s (schema version %d)\n", a.store.Path(), version)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect schema migrations",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runner, err := migrate.NewRunner(store.Migrations())
		if err != nil {
			return err
		}

		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			fmt.Printf("No database at %s; %d migrations would be applied\n", dbPath, runner.Len())
			return nil
		}

		// opened directly so that inspecting does not migrate
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		handle := migrate.NewSQLiteHandle(db)
		current, err := handle.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		pending, err := runner.Pending(ctx, handle)
		if err != nil {
			return err
		}

		fmt.Printf("Schema version: %d (latest %d)\n", current, runner.Target())
		if len(pending) == 0 {
			fmt.Println("Up to date")
			return nil
		}
		fmt.Println("Pending:")
		for _, m := range pending {
			fmt.Printf("  %3d  %s\n", m.Version, m.Description)
		}
		return nil
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture <text>...",
	Short: "Save a new idea",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		title, _ := cmd.Flags().GetString("title")
		sourceApp, _ := cmd.Flags().GetString("source")

		a, err := openWithCompute(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []store.IdeaOption{store.WithSourceApp(sourceApp)}
		if title != "" {
			opts = append(opts, store.WithTitle(title))
		}
		res, err := a.notes().Capture(ctx, strings.Join(args, " "), opts...)
		if err != nil {
			return fmt.Errorf("failed to capture idea: %w", err)
		}

		fmt.Printf("Captured %s\n", res.Idea.ID)
		if res.EmbedErr != nil {
			fmt.Fprintf(os.Stderr, "warning: saved without embedding (%v); run 'glimt reindex' later\n", res.EmbedErr)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ideas, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archived, _ := cmd.Flags().GetBool("archived")
		all, _ := cmd.Flags().GetBool("all")

		filter := store.Active()
		switch {
		case all:
			filter = store.IdeaFilter{}
		case archived:
			filter = store.ArchivedOnly()
		}

		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ideas, err := a.store.GetIdeas(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list ideas: %w", err)
		}

		if outputJSON(cmd) {
			return printJSON(ideas)
		}
		if len(ideas) == 0 {
			fmt.Println("No ideas")
			return nil
		}
		for _, idea := range ideas {
			printIdeaLine(idea)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one idea",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		idea, err := a.store.GetIdea(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get idea: %w", err)
		}
		if idea == nil {
			return fmt.Errorf("idea %s: %w", args[0], store.ErrIdeaNotFound)
		}

		if outputJSON(cmd) {
			return printJSON(idea)
		}
		fmt.Printf("ID: %s\n", idea.ID)
		if idea.Title != "" {
			fmt.Printf("Title: %s\n", idea.Title)
		}
		fmt.Printf("Created: %s\n", formatMillis(idea.CreatedAt))
		fmt.Printf("Updated: %s\n", formatMillis(idea.UpdatedAt))
		if idea.SourceApp != "" {
			fmt.Printf("Source: %s\n", idea.SourceApp)
		}
		if idea.MarkdownPath != "" {
			fmt.Printf("Markdown: %s\n", idea.MarkdownPath)
		}
		if idea.Archived {
			fmt.Println("Archived: yes")
		}
		fmt.Printf("\n%s\n", idea.Text)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit an idea's text or title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var upd store.IdeaUpdate
		if cmd.Flags().Changed("text") {
			text, _ := cmd.Flags().GetString("text")
			upd.Text = &text
		}
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			upd.Title = &title
		}
		if clearTitle, _ := cmd.Flags().GetBool("clear-title"); clearTitle {
			if upd.Title != nil {
				return fmt.Errorf("--title and --clear-title are mutually exclusive")
			}
			empty := ""
			upd.Title = &empty
		}
		if upd.Text == nil && upd.Title == nil {
			return fmt.Errorf("nothing to update: pass --text, --title or --clear-title")
		}

		a, err := openWithCompute(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.notes().Update(ctx, args[0], upd)
		if err != nil {
			return fmt.Errorf("failed to update idea: %w", err)
		}
		fmt.Printf("Updated %s\n", res.Idea.ID)
		if res.EmbedErr != nil {
			fmt.Fprintf(os.Stderr, "warning: embedding not refreshed (%v)\n", res.EmbedErr)
		}
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive an idea, or restore it with --undo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		undo, _ := cmd.Flags().GetBool("undo")

		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ArchiveIdea(ctx, args[0], !undo); err != nil {
			return fmt.Errorf("failed to archive idea: %w", err)
		}
		if undo {
			fmt.Printf("Restored %s\n", args[0])
		} else {
			fmt.Printf("Archived %s\n", args[0])
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an idea and its embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteIdea(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete idea: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write an idea to a markdown file and remember its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir, _ := cmd.Flags().GetString("dir")

		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		idea, err := a.store.GetIdea(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get idea: %w", err)
		}
		if idea == nil {
			return fmt.Errorf("idea %s: %w", args[0], store.ErrIdeaNotFound)
		}

		path, err := filepath.Abs(filepath.Join(dir, idea.ID+".md"))
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(renderMarkdown(idea)), 0o644); err != nil {
			return fmt.Errorf("failed to write markdown: %w", err)
		}
		if err := a.store.SetMarkdownPath(ctx, idea.ID, path); err != nil {
			return fmt.Errorf("failed to record markdown path: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search ideas by keyword, meaning, or both",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, _ := cmd.Flags().GetString("mode")
		topK, _ := cmd.Flags().GetInt("top-k")
		query := strings.Join(args, " ")

		var (
			a   *app
			err error
		)
		switch mode {
		case "lexical":
			a, err = openStore(ctx)
		case "semantic", "hybrid":
			a, err = openWithCompute(ctx)
		default:
			return fmt.Errorf("unknown search mode %q (want lexical, semantic or hybrid)", mode)
		}
		if err != nil {
			return err
		}
		defer a.Close()

		engine := a.engine()
		var results []search.Result
		switch mode {
		case "lexical":
			results, err = engine.SearchLexical(ctx, query, topK)
		case "semantic":
			results, err = engine.SearchSemantic(ctx, query, topK)
		case "hybrid":
			results, err = engine.SearchHybrid(ctx, query, topK)
		}
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if outputJSON(cmd) {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No results")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%2d. [%.4f %-8s] ", i+1, r.Score, r.Source)
			printIdeaLine(r.Idea)
		}
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Embed every idea that has no vector for the current model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		a, err := openWithCompute(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		res, err := a.notes().Reindex(ctx, concurrency)
		if err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
		fmt.Printf("Embedded %d of %d ideas with %s in %s\n",
			res.Embedded, res.Total, a.cfg.EmbedModel, time.Since(start).Round(time.Millisecond))
		if res.Failed > 0 {
			return fmt.Errorf("%d ideas could not be embedded", res.Failed)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		if outputJSON(cmd) {
			return printJSON(stats)
		}
		fmt.Printf("Database: %s\n", a.store.Path())
		fmt.Printf("  Ideas: %s (%s archived)\n", humanize.Comma(stats.Ideas), humanize.Comma(stats.Archived))
		fmt.Printf("  Embeddings: %s\n", humanize.Comma(stats.Embeddings))
		fmt.Printf("  Schema version: %d\n", stats.SchemaVersion)
		fmt.Printf("  Size: %s\n", humanize.Bytes(uint64(stats.SizeBytes)))
		return nil
	},
}

func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printIdeaLine(idea *store.Idea) {
	label := idea.Title
	if label == "" {
		label = summarize(idea.Text, 60)
	}
	marker := ""
	if idea.Archived {
		marker = " (archived)"
	}
	fmt.Printf("%s  %s%s  %s\n", idea.ID[:8], label, marker, humanize.Time(time.UnixMilli(idea.CreatedAt)))
}

func summarize(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max-1]) + "…"
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func renderMarkdown(idea *store.Idea) string {
	var b strings.Builder
	if idea.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", idea.Title)
	}
	b.WriteString(idea.Text)
	if !strings.HasSuffix(idea.Text, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "glimt.db", "Database file path (default from GLIMT_DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	migrateCmd.AddCommand(migrateStatusCmd)

	captureCmd.Flags().String("title", "", "Idea title")
	captureCmd.Flags().String("source", "cli", "Application the idea came from")

	listCmd.Flags().Bool("archived", false, "Only archived ideas")
	listCmd.Flags().Bool("all", false, "Active and archived ideas")
	listCmd.Flags().Bool("json", false, "Output as JSON")

	showCmd.Flags().Bool("json", false, "Output as JSON")

	updateCmd.Flags().String("text", "", "New text")
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().Bool("clear-title", false, "Remove the title")

	archiveCmd.Flags().Bool("undo", false, "Restore the idea instead")

	exportCmd.Flags().String("dir", ".", "Directory to write the markdown file to")

	searchCmd.Flags().String("mode", "hybrid", "Search mode (lexical/semantic/hybrid)")
	searchCmd.Flags().IntP("top-k", "k", search.DefaultTopK, "Number of results")
	searchCmd.Flags().Bool("json", false, "Output as JSON")

	reindexCmd.Flags().Int("concurrency", notes.DefaultConcurrency, "Parallel embedding requests")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		initCmd,
		migrateCmd,
		captureCmd,
		listCmd,
		showCmd,
		updateCmd,
		archiveCmd,
		deleteCmd,
		exportCmd,
		searchCmd,
		reindexCmd,
		statsCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
