package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/quizbank/internal/bank"
	"github.com/pavelanni/quizbank/internal/export"
	appI18n "github.com/pavelanni/quizbank/internal/i18n"
	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/qti"
	"github.com/pavelanni/quizbank/internal/quiz"
	"github.com/pavelanni/quizbank/internal/render"
	"github.com/pavelanni/quizbank/internal/store"
)

// formatByExt maps source file extensions to importer names.
var formatByExt = map[string]string{
	".gift":  "gift",
	".aiken": "aiken",
	".csv":   "csv",
	".xml":   "moodlexml",
	".json":  "json",
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Convert a GIFT, Aiken, CSV, Moodle XML or JSON file into bank items",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringP("format", "f", "", "Source format (default: inferred from the file extension)")
	f.StringP("out", "o", "bank", "Bank directory to write items to")
	f.String("prefix", "", "Id prefix for new items (default: slug of the topic)")
	f.Int("start", 1, "First sequence number for new ids")
	f.StringP("topic", "t", "", "Topic for items without one (default: the GIFT title, else \"Imported\")")
	f.StringP("difficulty", "d", string(model.DifficultyEasy), "Difficulty for items without one (easy, medium, hard)")
	f.String("tags", "", "Comma-separated tags added to every item")
	f.String("author", "Unknown", "Author recorded on every item")
	f.String("license", "CC-BY-4.0", "License recorded on every item")
	f.Int("points", 1, "Points for items without a value")
	f.Bool("shuffle", true, "Shuffle flag for choice items (only applied when given)")
	f.StringToString("csv-map", nil, "CSV column remapping, e.g. stem=Question,correct=Key")
	f.Bool("dry-run", false, "Print the items instead of writing them")
	f.String("db", "quizbank.db", "SQLite database holding the import ledger")
	f.Bool("force", false, "Import a file even if it changed since it was last imported")
	f.Bool("no-pandoc", false, "Skip pandoc when converting Moodle XML HTML")
	f.Int("cache-size", render.DefaultCacheSize, "Rendered fragment cache entries")
	addLogFlags(f)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	path := args[0]

	format := v.GetString("format")
	if format == "" {
		var ok bool
		if format, ok = formatByExt[strings.ToLower(filepath.Ext(path))]; !ok {
			return fmt.Errorf("cannot infer format of %s: pass --format", path)
		}
	}
	difficulty := model.Difficulty(strings.ToLower(v.GetString("difficulty")))
	switch difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("invalid difficulty %q", difficulty)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	opts := importer.Options{
		DefaultPoints: v.GetInt("points"),
		Topic:         v.GetString("topic"),
		Difficulty:    difficulty,
		Tags:          importer.ParseTagList(v.GetString("tags")),
		Author:        v.GetString("author"),
		License:       v.GetString("license"),
	}
	if cmd.Flags().Changed("shuffle") {
		opts.ShuffleChoices = model.Bool(v.GetBool("shuffle"))
	}
	if m, err := cmd.Flags().GetStringToString("csv-map"); err == nil && len(m) > 0 {
		opts.CSVColumnMap = m
	}
	prefix := v.GetString("prefix")
	if prefix == "" {
		prefix = opts.IDPrefix()
	}

	conv, release := converter(v)
	defer release()
	reg := importer.NewRegistry(conv)

	req := bank.ImportRequest{
		Format:   format,
		Source:   data,
		Options:  opts,
		IDPrefix: prefix,
		Start:    v.GetInt("start"),
	}

	if v.GetBool("dry-run") {
		res, err := bank.Import(cmd.Context(), reg, req)
		if err != nil {
			return err
		}
		for _, it := range res.Items {
			out, err := bank.Encode(it)
			if err != nil {
				return fmt.Errorf("encode %s: %w", it.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "---\n%s", out)
		}
		slog.Info("dry run", "path", path, "count", len(res.Items), "next", res.Next)
		return nil
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	key, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(key)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	force := v.GetBool("force")
	if storedHash == hash && !force {
		slog.Info("source file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" && !force {
		return fmt.Errorf("%s changed since it was last imported; rerun with --force to import it again", path)
	}

	req.OutDir = v.GetString("out")
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return fmt.Errorf("create bank directory: %w", err)
	}
	res, err := bank.Import(cmd.Context(), reg, req)
	if err != nil {
		return err
	}
	if err := db.SetImportedFileHash(key, hash, len(res.Items)); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported items", "path", path, "format", format, "count", len(res.Items), "next", res.Next)
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List import formats and build targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "import:")
			for _, name := range importer.NewRegistry(render.Passthrough{}).Names() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "build:")
			fmt.Fprintln(out, "  qti")
			for _, f := range export.Formats {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <bank-dir>",
		Short: "Check every item in a bank against the item schema",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	addLogFlags(cmd.Flags())
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	b, err := bank.Load(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, it := range b.Items() {
		err := model.Validate(it)
		var se *model.StructuralError
		switch {
		case err == nil:
			continue
		case errors.As(err, &se):
			for _, p := range se.Problems {
				fmt.Fprintf(out, "%s (%s): %s\n", it.ID, b.Path(it.ID), p)
			}
		default:
			fmt.Fprintf(out, "%s (%s): %v\n", it.ID, b.Path(it.ID), err)
		}
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed validation", failed, b.Len())
	}
	fmt.Fprintf(out, "%d items OK\n", b.Len())
	return nil
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "build <qti|md|latex|typst> <quiz.yaml>",
		Short:     "Build a QTI package or a printable document from a quiz file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"qti", "md", "latex", "typst"},
		RunE:      runBuild,
	}
	f := cmd.Flags()
	f.StringP("bank", "b", "bank", "Bank directory")
	f.Int64("seed", quiz.DefaultSeed, "Sampling seed for quizzes without their own")
	f.StringP("out", "o", "", "Output path (default: derived from the quiz title; - for stdout)")
	f.StringP("lang", "l", appI18n.DefaultLang, "Label language for documents (en, ru)")
	f.Bool("no-pandoc", false, "Skip pandoc and pass markup through")
	f.Int("cache-size", render.DefaultCacheSize, "Rendered fragment cache entries")
	addLogFlags(f)
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	target, quizPath := strings.ToLower(args[0]), args[1]

	asm, err := quiz.LoadAssembly(quizPath)
	if err != nil {
		return err
	}
	b, err := bank.Load(v.GetString("bank"))
	if err != nil {
		return fmt.Errorf("load bank: %w", err)
	}
	items, err := quiz.Resolve(asm, b, quiz.Seed(asm, v.GetInt64("seed")))
	if err != nil {
		return fmt.Errorf("resolve quiz %s: %w", quizPath, err)
	}

	conv, release := converter(v)
	defer release()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLang(cmd.Context(), lang)

	data, ext, skipped, err := buildTarget(ctx, target, conv, asm, items)
	if err != nil {
		return err
	}

	out := v.GetString("out")
	if out == "" {
		out = importer.Slugify(asm.DisplayTitle(), 50) + ext
	}
	if err := writeOutput(cmd.OutOrStdout(), out, data); err != nil {
		return err
	}
	slog.Info("built quiz", "target", target, "out", out, "items", len(items)-skipped, "skipped", skipped)
	return nil
}

func buildTarget(ctx context.Context, target string, conv render.Converter, asm *model.QuizAssembly, items []model.Item) ([]byte, string, int, error) {
	if target == "qti" {
		pkg, err := qti.NewBuilder(conv).Build(ctx, asm.DisplayTitle(), items)
		if err != nil {
			return nil, "", 0, err
		}
		var buf bytes.Buffer
		if err := pkg.WriteZip(&buf); err != nil {
			return nil, "", 0, err
		}
		return buf.Bytes(), "-qti.zip", len(pkg.Skipped), nil
	}
	f, err := export.ParseFormat(target)
	if err != nil {
		return nil, "", 0, err
	}
	res, err := export.New(conv).Render(ctx, f, asm, items)
	if err != nil {
		return nil, "", 0, err
	}
	return res.Data, f.Ext(), len(res.Skipped), nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the SQLite index of a bank directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			b, err := bank.Load(v.GetString("bank"))
			if err != nil {
				return fmt.Errorf("load bank: %w", err)
			}
			return reindex(db, b, v.GetString("bank"))
		},
	}
	f := cmd.Flags()
	f.StringP("bank", "b", "bank", "Bank directory")
	f.String("db", "quizbank.db", "SQLite index path")
	addLogFlags(f)
	return cmd
}

func reindex(db *store.Store, b *bank.Bank, dir string) error {
	n, err := db.Reindex(b.Items(), b.Path)
	if err != nil {
		return fmt.Errorf("index bank: %w", err)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if err := db.SetIndexInfo(store.IndexInfo{BankDir: dir, IndexedAt: time.Now().UTC(), Items: n}); err != nil {
		return fmt.Errorf("record index info: %w", err)
	}
	slog.Info("indexed bank", "dir", dir, "items", n)
	return nil
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed items, or per-topic totals with --summary",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	f := cmd.Flags()
	f.String("db", "quizbank.db", "SQLite index path")
	f.StringP("topic", "t", "", "Only items with this topic")
	f.StringP("difficulty", "d", "", "Only items with this difficulty")
	f.String("tag", "", "Only items carrying this tag")
	f.Bool("summary", false, "Show item and point totals per topic")
	addLogFlags(f)
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	info, err := db.GetIndexInfo()
	if err != nil {
		return fmt.Errorf("read index info: %w", err)
	}
	if info.IndexedAt.IsZero() {
		return errors.New("bank is not indexed yet: run quizbank index")
	}
	slog.Debug("index", "bank", info.BankDir, "indexed_at", info.IndexedAt, "items", info.Items)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if v.GetBool("summary") {
		sum, err := db.Summarize()
		if err != nil {
			return fmt.Errorf("summarize index: %w", err)
		}
		fmt.Fprintln(tw, "TOPIC\tITEMS\tPOINTS\tTYPES")
		for _, s := range sum {
			var types []string
			for _, t := range model.ItemTypes {
				if n := s.ByType[t]; n > 0 {
					types = append(types, fmt.Sprintf("%s=%d", t, n))
				}
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Topic, s.Total, s.Points, strings.Join(types, " "))
		}
		return nil
	}

	var rows []store.ItemRow
	if tag := v.GetString("tag"); tag != "" {
		rows, err = db.ListItemsByTag(tag)
	} else {
		rows, err = db.ListItemsFiltered(v.GetString("difficulty"), v.GetString("topic"))
	}
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	fmt.Fprintln(tw, "ID\tTYPE\tPOINTS\tTOPIC\tDIFFICULTY\tPATH")
	for _, r := range rows {
		if v.GetString("tag") != "" && !matches(r, v.GetString("topic"), v.GetString("difficulty")) {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.Type, r.Points, r.Topic, r.Difficulty, r.Path)
	}
	return nil
}

func matches(r store.ItemRow, topic, difficulty string) bool {
	return (topic == "" || r.Topic == topic) && (difficulty == "" || string(r.Difficulty) == difficulty)
}
