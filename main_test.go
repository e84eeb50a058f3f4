package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/app"
	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/repository/localdir"
	"github.com/debemdeboas/dailywrite/internal/routes"
	"github.com/debemdeboas/dailywrite/internal/sse"
)

func init() {
	app.SetLoggers(zerolog.Nop())
}

type testServer struct {
	*server
	h    http.Handler
	root string
}

func newTestServer(t *testing.T, grant bool) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Draft.DBPath = filepath.Join(t.TempDir(), "dailywrite.db")
	cfg.Export.Dir = t.TempDir()

	a, err := app.New(context.Background(), cfg, localdir.WithoutWatch())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	ts := &testServer{server: newServer(a, zerolog.Nop())}
	ts.h = ts.handler()
	if grant {
		ts.root = t.TempDir()
		if _, err := a.Grant(context.Background(), ts.root); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}
	return ts
}

func (ts *testServer) do(method, path string, body io.Reader, contentType string) *http.Response {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(config.HCType, contentType)
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec.Result()
}

func (ts *testServer) doJSON(method, path string, v any) *http.Response {
	var body io.Reader
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	return ts.do(method, path, body, config.CTypeJSON)
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var v T
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestRobotsAndSecureHeaders(t *testing.T) {
	ts := newTestServer(t, false)

	res := ts.do(http.MethodGet, routes.RobotsPath, nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 OK, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Frame-Options") != "" {
		t.Error("Expected robots.txt to skip secure headers")
	}

	res = ts.do(http.MethodGet, routes.APIDraft, nil, "")
	if res.Header.Get("X-Frame-Options") != "deny" || res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("Expected secure headers, got %v", res.Header)
	}
	if res.Header.Get(config.HCacheControl) != "no-cache" {
		t.Errorf("Expected no-cache, got %q", res.Header.Get(config.HCacheControl))
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		origin string
		want   string
	}{
		{"chrome-extension://abcdefghijklmnop", "chrome-extension://abcdefghijklmnop"},
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, routes.APIDraft, nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			ts.h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Expected allow origin %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDraftRoundTrip(t *testing.T) {
	ts := newTestServer(t, false)

	res := ts.doJSON(http.MethodPut, routes.APIDraft, draftRequest{Text: "hello world", Save: true})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 OK, got %d", res.StatusCode)
	}
	res.Body.Close()

	state := decode[map[string]any](t, ts.do(http.MethodGet, routes.APIDraft, nil, ""))
	if state["text"] != "hello world" || state["words"] != float64(2) {
		t.Errorf("Unexpected draft state %v", state)
	}
	if state["saved_at"] == nil {
		t.Error("Expected saved_at after an immediate save")
	}

	state = decode[map[string]any](t, ts.do(http.MethodDelete, routes.APIDraft, nil, ""))
	if state["text"] != "" || state["saved_at"] != nil {
		t.Errorf("Expected cleared draft without saved marker, got %v", state)
	}
}

func TestDraftMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, false)
	res := ts.do(http.MethodPost, routes.APIDraft, nil, "")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", res.StatusCode)
	}
}

func TestPublishValidation(t *testing.T) {
	ts := newTestServer(t, true)
	ts.app.Session.Save("entry")

	tests := []struct {
		name string
		req  publishRequest
	}{
		{"unknown conflict policy", publishRequest{OnConflict: "merge"}},
		{"newfile without name", publishRequest{OnConflict: "newfile"}},
		{"settings is not a policy", publishRequest{OnFailure: "settings"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ts.doJSON(http.MethodPost, routes.APIPublish, tt.req)
			if res.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", res.StatusCode)
			}
		})
	}
}

func TestPublishEmptyDraft(t *testing.T) {
	ts := newTestServer(t, true)

	res := ts.do(http.MethodPost, routes.APIPublish, nil, "")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", res.StatusCode)
	}
	resp := decode[publishResponse](t, res)
	if resp.Kind != backend.KindEmptyInput.String() {
		t.Errorf("Expected empty_input, got %q", resp.Kind)
	}
}

func TestPublishWritesLocalAndClearsDraft(t *testing.T) {
	ts := newTestServer(t, true)
	ts.app.Session.Save("Today I wrote tests.")

	res := ts.do(http.MethodPost, routes.APIPublish, nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 OK, got %d", res.StatusCode)
	}
	resp := decode[publishResponse](t, res)

	if resp.Outcome.Local.Status != model.StatusOK || resp.Outcome.Remote.Status != model.StatusSkipped {
		t.Errorf("Unexpected outcome %+v", resp.Outcome)
	}
	got, err := os.ReadFile(filepath.Join(ts.root, filepath.FromSlash(resp.Outcome.Local.Path)))
	if err != nil || string(got) != "Today I wrote tests." {
		t.Errorf("Expected published file, got %q (%v)", got, err)
	}
	if !resp.Outcome.DraftCleared || ts.app.Session.Text() != "" {
		t.Error("Expected draft cleared after publish")
	}

	history := decode[[]model.PublishOutcome](t, ts.do(http.MethodGet, routes.APIHistory, nil, ""))
	if len(history) != 1 || history[0].ID != resp.Outcome.ID {
		t.Errorf("Expected the publish in history, got %+v", history)
	}
}

func TestPublishConflictPolicies(t *testing.T) {
	tests := []struct {
		name       string
		req        publishRequest
		wantStatus int
		wantFile   string
		wantNew    string
	}{
		{"append", publishRequest{OnConflict: "append"}, http.StatusOK, "old\n\nnew", ""},
		{"overwrite", publishRequest{OnConflict: "overwrite"}, http.StatusOK, "new", ""},
		{"default cancels", publishRequest{}, http.StatusConflict, "old", ""},
		{"newfile", publishRequest{OnConflict: "newfile", NewFileName: "second.md"}, http.StatusOK, "old", "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, true)
			target := model.NewTargetName(time.Now(), ts.app.Config().Local.TargetDir)
			existing := filepath.Join(ts.root, filepath.FromSlash(target.Path()))
			os.MkdirAll(filepath.Dir(existing), 0o755)
			os.WriteFile(existing, []byte("old"), 0o644)

			ts.app.Session.Save("new")
			res := ts.doJSON(http.MethodPost, routes.APIPublish, tt.req)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, res.StatusCode)
			}
			res.Body.Close()

			got, _ := os.ReadFile(existing)
			if string(got) != tt.wantFile {
				t.Errorf("Expected existing file %q, got %q", tt.wantFile, got)
			}
			if tt.wantNew != "" {
				second, _ := os.ReadFile(filepath.Join(filepath.Dir(existing), "second.md"))
				if string(second) != tt.wantNew {
					t.Errorf("Expected new file %q, got %q", tt.wantNew, second)
				}
			}
			if tt.wantStatus != http.StatusOK && ts.app.Session.Text() != "new" {
				t.Errorf("Expected draft kept, got %q", ts.app.Session.Text())
			}
		})
	}
}

func TestPublishWithoutGrant(t *testing.T) {
	ts := newTestServer(t, false)
	ts.app.Session.Save("nowhere to go")

	res := ts.doJSON(http.MethodPost, routes.APIPublish, publishRequest{OnFailure: "export"})
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("Expected 412, got %d", res.StatusCode)
	}
	resp := decode[publishResponse](t, res)
	if resp.Kind != backend.KindNoGrant.String() || resp.Outcome.Local.Status != model.StatusFailed {
		t.Errorf("Expected a no_grant local failure, got %+v", resp)
	}
	if ts.app.Session.Text() != "nowhere to go" {
		t.Error("Expected the draft to be kept")
	}
}

func TestImagesUpload(t *testing.T) {
	ts := newTestServer(t, true)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "screenshot.png")
	fw.Write([]byte("PNGDATA"))
	mw.Close()

	res := ts.do(http.MethodPost, routes.APIImages, &body, mw.FormDataContentType())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", res.StatusCode)
	}
	resp := decode[imageResponse](t, res)

	if resp.Placement.Backend != model.BackendLocal {
		t.Errorf("Expected local placement, got %+v", resp.Placement)
	}
	if !strings.HasPrefix(resp.Placement.Reference, "./images/") {
		t.Errorf("Expected relative images reference, got %q", resp.Placement.Reference)
	}
	if !strings.Contains(ts.app.Session.Text(), resp.Markdown) {
		t.Errorf("Expected the reference inserted in the draft, got %q", ts.app.Session.Text())
	}

	state := decode[draftResponse](t, ts.do(http.MethodGet, routes.APIDraft, nil, ""))
	if len(state.Images) != 1 || state.Images[0] != resp.Placement.Reference {
		t.Errorf("Expected the draft to list the image, got %v", state.Images)
	}
}

func TestImagesRequiresFile(t *testing.T) {
	ts := newTestServer(t, true)
	res := ts.do(http.MethodPost, routes.APIImages, strings.NewReader("nope"), "text/plain")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", res.StatusCode)
	}
}

func TestGrant(t *testing.T) {
	ts := newTestServer(t, false)
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "content", "journals"), 0o755)

	resp := decode[map[string]string](t, ts.doJSON(http.MethodPost, routes.APIGrant, grantRequest{Dir: root}))
	if resp["root"] != root || resp["target_dir"] != "content/journals" {
		t.Errorf("Unexpected grant response %v", resp)
	}

	res := ts.doJSON(http.MethodPost, routes.APIGrant, grantRequest{Dir: filepath.Join(root, "missing")})
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing directory, got %d", res.StatusCode)
	}

	res = ts.doJSON(http.MethodPost, routes.APIGrant, grantRequest{})
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without a directory, got %d", res.StatusCode)
	}
}

func TestRevokeGrant(t *testing.T) {
	ts := newTestServer(t, true)

	res := ts.do(http.MethodDelete, routes.APIGrant, nil, "")
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", res.StatusCode)
	}
	if _, ok := ts.app.Local.Root(); ok {
		t.Error("Expected the grant to be forgotten")
	}

	ts.app.Session.Save("after revoke")
	res = ts.do(http.MethodPost, routes.APIPublish, nil, "")
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 after revoke, got %d", res.StatusCode)
	}
}

func TestRemoteCheck(t *testing.T) {
	ts := newTestServer(t, false)

	res := ts.do(http.MethodGet, routes.APIRemote, nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 OK, got %d", res.StatusCode)
	}
	if resp := decode[remoteResponse](t, res); resp.Enabled {
		t.Errorf("Expected remote disabled, got %+v", resp)
	}

	res = ts.do(http.MethodPost, routes.APIRemote, nil, "")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", res.StatusCode)
	}
}

func TestDraftPreviewSavesAndRenders(t *testing.T) {
	ts := newTestServer(t, false)

	form := url.Values{"content": {"# Title\n\nbody"}}
	res := ts.do(http.MethodPost, routes.PartialsDraftPreview, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 OK, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "<h1") || !strings.Contains(string(body), "Title") {
		t.Errorf("Expected rendered heading, got %s", body)
	}
	if ts.app.Session.Text() != "# Title\n\nbody" {
		t.Errorf("Expected preview content in the draft, got %q", ts.app.Session.Text())
	}
}

func TestDraftChangesAreBroadcast(t *testing.T) {
	ts := newTestServer(t, false)
	client := sse.NewClient(ts.app.Session.ID())
	ts.clients.Add(client)
	defer ts.clients.Delete(client)

	ts.app.Session.Save("broadcast me")

	select {
	case msg := <-client.Msg:
		if !strings.Contains(msg, "broadcast me") {
			t.Errorf("Expected draft text in event, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a draft event")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(http.MethodGet, routes.APIDraft, nil, "").Body.Close()

	res := ts.do(http.MethodGet, routes.MetricsPath, nil, "")
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "dailywrite_request_duration_seconds") {
		t.Error("Expected request metrics to be exported")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind backend.Kind
		want int
	}{
		{backend.KindEmptyInput, http.StatusBadRequest},
		{backend.KindBusy, http.StatusConflict},
		{backend.KindUserCancelled, http.StatusConflict},
		{backend.KindNoGrant, http.StatusPreconditionFailed},
		{backend.KindPermissionDenied, http.StatusForbidden},
		{backend.KindTimeout, http.StatusGatewayTimeout},
		{backend.KindNetworkUnavailable, http.StatusBadGateway},
		{backend.KindOther, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := backend.Errorf(backend.Publish, tt.kind, "test", "boom")
			if got := statusFor(err); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
