package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const sampleGIFT = `// arithmetic
::Q1:: Two plus two? {=4 ~3 ~5}

::Q2:: The sky is blue. {T}

::Q3:: Pi to two places? {#3.14:0.01}
`

func TestImportBuildRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "week1.gift")
	if err := os.WriteFile(src, []byte(sampleGIFT), 0o644); err != nil {
		t.Fatal(err)
	}
	bankDir := filepath.Join(dir, "bank")
	db := filepath.Join(dir, "quizbank.db")

	if _, err := run(t, "import", src, "--out", bankDir, "--db", db, "--topic", "Math", "--no-pandoc"); err != nil {
		t.Fatalf("import: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(bankDir, "*.yaml"))
	if len(files) != 3 {
		t.Fatalf("wrote %d item files, want 3", len(files))
	}

	// Unchanged source is a no-op; a changed one needs --force.
	if _, err := run(t, "import", src, "--out", bankDir, "--db", db, "--topic", "Math", "--no-pandoc"); err != nil {
		t.Fatalf("re-import unchanged: %v", err)
	}
	if err := os.WriteFile(src, []byte(sampleGIFT+"\nExtra? {F}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "import", src, "--out", bankDir, "--db", db, "--no-pandoc"); err == nil {
		t.Error("expected changed file to be refused")
	}

	out, err := run(t, "validate", bankDir)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 items OK") {
		t.Errorf("validate output = %q", out)
	}

	quizPath := filepath.Join(dir, "quiz.yaml")
	quizYAML := "title: Week 1\nitems:\n  - math.002\n  - id: math.001\n    points: 4\n"
	if err := os.WriteFile(quizPath, []byte(quizYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "build", "md", quizPath, "--bank", bankDir, "--out", "-", "--no-pandoc")
	if err != nil {
		t.Fatalf("build md: %v", err)
	}
	for _, want := range []string{"# Week 1", "### 1. (1 pt)\n\nThe sky is blue.", "### 2. (4 pts)\n\nTwo plus two?"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	zipPath := filepath.Join(dir, "week1.zip")
	if _, err := run(t, "build", "qti", quizPath, "--bank", bankDir, "--out", zipPath, "--no-pandoc"); err != nil {
		t.Fatalf("build qti: %v", err)
	}
	if fi, err := os.Stat(zipPath); err != nil || fi.Size() == 0 {
		t.Errorf("qti package not written: %v", err)
	}

	if _, err := run(t, "index", "--bank", bankDir, "--db", db); err != nil {
		t.Fatalf("index: %v", err)
	}
	out, err = run(t, "list", "--db", db, "--summary")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Math") || !strings.Contains(out, "numeric=1") {
		t.Errorf("summary = %q", out)
	}
}

func TestImportDryRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "q.gift")
	if err := os.WriteFile(src, []byte(sampleGIFT), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "import", src, "--dry-run", "--prefix", "demo", "--start", "10", "--out", filepath.Join(dir, "bank"))
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "id: demo.010") || !strings.Contains(out, "id: demo.012") {
		t.Errorf("dry run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "bank")); !os.IsNotExist(err) {
		t.Errorf("dry run created the bank directory")
	}
}

func TestImportUnknownExtension(t *testing.T) {
	src := filepath.Join(t.TempDir(), "q.docx")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "import", src, "--dry-run"); err == nil || !strings.Contains(err.Error(), "--format") {
		t.Errorf("import = %v, want format hint", err)
	}
}

func TestImportTopicFromGIFTTitle(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "q.gift")
	if err := os.WriteFile(src, []byte("::Geography:: Capital of France? {=Paris ~Rome}\n\nUntitled? {T}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "import", src, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	for _, want := range []string{"id: imported.001", "topic: Geography", "id: imported.002", "topic: Imported"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry run output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "import", src, "--dry-run", "--topic", "Maps")
	if err != nil {
		t.Fatalf("dry run with --topic: %v", err)
	}
	if strings.Contains(out, "topic: Geography") || !strings.Contains(out, "id: maps.001") {
		t.Errorf("--topic did not override the title:\n%s", out)
	}
}
