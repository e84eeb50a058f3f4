package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/debemdeboas/dailywrite/internal/model"
)

type cliEnv struct {
	t      *testing.T
	config string
	root   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf("logging:\n  level: error\ndraft:\n  db_path: %s\n  debounce: 0s\nexport:\n  dir: %s\n",
		filepath.Join(dir, "dailywrite.db"), filepath.Join(dir, "exports"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cliEnv{t: t, config: path, root: t.TempDir()}
}

func (e *cliEnv) run(stdin string, args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(context.Background(), append([]string{"-config", e.config}, args...), console{
		in:     strings.NewReader(stdin),
		out:    &out,
		errOut: &errOut,
	})
	return code, out.String(), errOut.String()
}

func TestUsage(t *testing.T) {
	e := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"grant without dir", []string{"grant"}},
		{"paste without image", []string{"paste"}},
		{"draft without action", []string{"draft"}},
		{"revoke with dir", []string{"grant", "-revoke", "/tmp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := e.run("", tt.args...)
			if code != exitUsage {
				t.Errorf("Expected exit %d, got %d", exitUsage, code)
			}
			if !strings.Contains(stderr, "Usage: dailywrite") {
				t.Errorf("Expected usage text, got %q", stderr)
			}
		})
	}
}

func TestDraftSetShowClear(t *testing.T) {
	e := newCLIEnv(t)

	if code, _, stderr := e.run("first entry", "draft", "set"); code != exitOK {
		t.Fatalf("draft set failed: %s", stderr)
	}
	code, stdout, stderr := e.run("", "draft", "show")
	if code != exitOK || stdout != "first entry\n" {
		t.Errorf("Expected stored draft, got %q (%d)", stdout, code)
	}
	if !strings.Contains(stderr, "2 words") {
		t.Errorf("Expected word count, got %q", stderr)
	}

	e.run("", "draft", "clear")
	_, stdout, stderr = e.run("", "draft", "show")
	if stdout != "" || !strings.Contains(stderr, "saved never") {
		t.Errorf("Expected cleared draft, got %q / %q", stdout, stderr)
	}
}

func TestGrantPublishHistory(t *testing.T) {
	e := newCLIEnv(t)

	if code, stdout, stderr := e.run("", "grant", e.root); code != exitOK || !strings.Contains(stdout, e.root) {
		t.Fatalf("grant failed: %q %q", stdout, stderr)
	}
	e.run("Went for a walk.", "draft", "set")

	code, stdout, stderr := e.run("", "publish")
	if code != exitOK {
		t.Fatalf("publish failed: %s", stderr)
	}
	if !strings.Contains(stdout, "local   ok") || !strings.Contains(stdout, "draft cleared") {
		t.Errorf("Unexpected publish output %q", stdout)
	}

	target := model.NewTargetName(time.Now(), "src/content/posts/dynamic/journals")
	got, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(target.Path())))
	if err != nil || string(got) != "Went for a walk." {
		t.Errorf("Expected published journal, got %q (%v)", got, err)
	}

	_, stdout, _ = e.run("", "history")
	if !strings.Contains(stdout, "local=ok remote=skipped") {
		t.Errorf("Expected the attempt in history, got %q", stdout)
	}
}

func TestPublishEmptyDraftFails(t *testing.T) {
	e := newCLIEnv(t)
	e.run("", "grant", e.root)

	code, _, stderr := e.run("", "publish")
	if code != exitError || !strings.Contains(stderr, "empty") {
		t.Errorf("Expected empty input error, got %d %q", code, stderr)
	}
}

func TestPublishConflictCancelsWhenNonInteractive(t *testing.T) {
	e := newCLIEnv(t)
	e.run("", "grant", e.root)

	target := model.NewTargetName(time.Now(), "src/content/posts/dynamic/journals")
	existing := filepath.Join(e.root, filepath.FromSlash(target.Path()))
	os.MkdirAll(filepath.Dir(existing), 0o755)
	os.WriteFile(existing, []byte("morning"), 0o644)

	src := filepath.Join(t.TempDir(), "evening.md")
	os.WriteFile(src, []byte("evening"), 0o644)

	code, _, _ := e.run("", "publish", "-file", src)
	if code != exitError {
		t.Errorf("Expected cancelled publish to fail, got %d", code)
	}
	got, _ := os.ReadFile(existing)
	if string(got) != "morning" {
		t.Errorf("Expected existing journal untouched, got %q", got)
	}
}

func TestPasteIntoImagesFolder(t *testing.T) {
	e := newCLIEnv(t)
	e.run("", "grant", e.root)

	img := filepath.Join(t.TempDir(), "photo.JPG")
	os.WriteFile(img, []byte("JPEGDATA"), 0o644)

	code, stdout, stderr := e.run("", "paste", img)
	if code != exitOK {
		t.Fatalf("paste failed: %s", stderr)
	}
	if !strings.HasPrefix(stdout, "![](./images/") || !strings.Contains(stdout, ".jpg)") || !strings.Contains(stdout, "(local)") {
		t.Errorf("Unexpected paste output %q", stdout)
	}

	_, draft, _ := e.run("", "draft", "show")
	if !strings.Contains(draft, "./images/") {
		t.Errorf("Expected reference in the draft, got %q", draft)
	}
}

func TestGrantRevoke(t *testing.T) {
	e := newCLIEnv(t)
	e.run("", "grant", e.root)

	code, stdout, stderr := e.run("", "grant", "-revoke")
	if code != exitOK || !strings.Contains(stdout, "grant revoked") {
		t.Fatalf("revoke failed: %q %q", stdout, stderr)
	}

	e.run("Lost the folder.", "draft", "set")
	code, _, stderr = e.run("", "publish")
	if code != exitError || !strings.Contains(stderr, "directory") {
		t.Errorf("Expected publish to need a directory, got %d %q", code, stderr)
	}
}

func TestCheckWithRemoteDisabled(t *testing.T) {
	e := newCLIEnv(t)

	code, _, stderr := e.run("", "check")
	if code != exitError || !strings.Contains(stderr, "disabled") {
		t.Errorf("Expected disabled remote error, got %d %q", code, stderr)
	}
}
