package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/repository/localdir"
)

func init() {
	SetLoggers(zerolog.Nop())
}

func newTestApp(t *testing.T, opts ...func(*config.Config)) (*App, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Draft.DBPath = filepath.Join(t.TempDir(), "dailywrite.db")
	cfg.Export.Dir = t.TempDir()
	for _, opt := range opts {
		opt(cfg)
	}

	a, err := New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, cfg
}

func TestGrantDetectsTargetDir(t *testing.T) {
	a, _ := newTestApp(t)
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "blog", "journals"), 0o755)

	target, err := a.Grant(context.Background(), root)
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if target != "blog/journals" || a.Config().Local.TargetDir != "blog/journals" {
		t.Errorf("Expected detected target blog/journals, got %q / %q", target, a.Config().Local.TargetDir)
	}
}

func TestConfigIsACopy(t *testing.T) {
	a, _ := newTestApp(t)
	c := a.Config()
	c.Local.TargetDir = "elsewhere"
	if a.Config().Local.TargetDir == "elsewhere" {
		t.Error("Expected callers to get a copy")
	}
}

func TestPublishAndPasteEndToEnd(t *testing.T) {
	a, _ := newTestApp(t)
	root := t.TempDir()
	if _, err := a.Grant(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	a.Session.Edit("Dear diary\n", len("Dear diary\n"))
	pl, err := a.Paste(context.Background(), nil, model.Blob{Name: "shot.png", MIME: "image/png", Data: []byte("PNG")}, false)
	if err != nil {
		t.Fatalf("Paste failed: %v", err)
	}
	if pl.Backend != model.BackendLocal {
		t.Errorf("Expected local placement, got %+v", pl)
	}

	out, err := a.Publish(context.Background(), prompt.NewScripted())
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	written, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(out.Local.Path)))
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != "Dear diary\n"+pl.Markdown() {
		t.Errorf("Unexpected document %q", written)
	}
	if a.Session.Text() != "" {
		t.Error("Expected draft cleared")
	}

	recent, err := a.History.Recent(5)
	if err != nil || len(recent) != 1 || recent[0].ID != out.ID {
		t.Errorf("Expected the attempt in history, got %+v (%v)", recent, err)
	}
}

func TestRestoresGrantAcrossRestarts(t *testing.T) {
	cfg := config.Default()
	cfg.Draft.DBPath = filepath.Join(t.TempDir(), "dailywrite.db")
	root := t.TempDir()

	first, err := New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatal(err)
	}
	first.Grant(context.Background(), root)
	first.Session.Save("kept")
	first.Close()

	second, err := New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if got, ok := second.Local.Root(); !ok || got != root {
		t.Errorf("Expected restored root %s, got %q", root, got)
	}
	if second.Session.Text() != "kept" {
		t.Errorf("Expected restored draft, got %q", second.Session.Text())
	}
}

func TestRevokeForgetsGrant(t *testing.T) {
	cfg := config.Default()
	cfg.Draft.DBPath = filepath.Join(t.TempDir(), "dailywrite.db")

	first, err := New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatal(err)
	}
	first.Grant(context.Background(), t.TempDir())
	if err := first.Revoke(); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, ok := first.Local.Root(); ok {
		t.Error("Expected no granted directory after revoke")
	}
	first.Close()

	second, err := New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if got, ok := second.Local.Root(); ok {
		t.Errorf("Expected the grant to stay revoked, got %s", got)
	}
}

func TestCheckRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		if r.URL.Path != "/repos/alice/journal" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.Write([]byte(`{"full_name":"alice/journal"}`))
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		enabled  bool
		repo     string
		token    string
		wantErr  bool
		wantKind backend.Kind
	}{
		{"reachable", true, "alice/journal", "good", false, backend.KindOther},
		{"bad token", true, "alice/journal", "bad", true, backend.KindAuthInvalid},
		{"missing repo", true, "https://github.com/alice/elsewhere", "good", true, backend.KindNotFound},
		{"disabled", false, "alice/journal", "good", true, backend.KindOther},
		{"unparsable repo", true, "not a repo", "good", true, backend.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, func(cfg *config.Config) {
				cfg.Remote.Enabled = tt.enabled
				cfg.Remote.Repo = tt.repo
				cfg.Remote.Token = tt.token
				cfg.Remote.APIBaseURL = srv.URL
			})

			err := a.CheckRemote(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && backend.KindOf(err) != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, backend.KindOf(err))
			}
		})
	}
}
