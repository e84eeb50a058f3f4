package github

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/model"
)

// contentsServer is a minimal in-memory contents API.
type contentsServer struct {
	mu    sync.Mutex
	files map[string][]byte
	puts  []putRequest
	token string
}

func sha(b []byte) string {
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:])
}

func (s *contentsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/repos/alice/journal/contents/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := s.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		json.NewEncoder(w).Encode(contentResponse{
			Type: "file", Path: path, SHA: sha(data),
			Content: base64.StdEncoding.EncodeToString(data), Encoding: "base64",
		})
	case http.MethodPut:
		var req putRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.puts = append(s.puts, req)

		current, exists := s.files[path]
		if (exists && req.SHA != sha(current)) || (!exists && req.SHA != "") {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"is at abc but expected def"}`))
			return
		}
		data, _ := base64.StdEncoding.DecodeString(req.Content)
		s.files[path] = data
		var resp putResponse
		resp.Content.Path = path
		resp.Content.SHA = sha(data)
		resp.Commit.SHA = "c0ffee"
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "secret", time.Second)
}

var ref = model.RemoteFileRef{Owner: "alice", Repo: "journal", Branch: "main", Path: "posts/2024-01-02.md"}

func TestFetchMissingIsNotFound(t *testing.T) {
	c := newTestClient(t, &contentsServer{files: map[string][]byte{}, token: "secret"})

	_, err := c.Fetch(context.Background(), ref)
	if !backend.Is(err, backend.KindNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestPutCreateThenConditionalUpdate(t *testing.T) {
	srv := &contentsServer{files: map[string][]byte{}, token: "secret"}
	c := newTestClient(t, srv)
	ctx := context.Background()

	created, err := c.Put(ctx, ref, []byte("v1"), "dynamic: 2024-01-02.md")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ContentHash != sha([]byte("v1")) {
		t.Errorf("Expected new sha, got %q", created.ContentHash)
	}

	fetched, err := c.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.ContentHash != created.ContentHash {
		t.Errorf("Expected fetched sha %q, got %q", created.ContentHash, fetched.ContentHash)
	}

	if _, err := c.Put(ctx, fetched, []byte("v2"), "update"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, _, err := c.Read(ctx, ref)
	if err != nil || string(data) != "v2" {
		t.Errorf("Expected v2, got %q (%v)", data, err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.puts) != 2 || srv.puts[0].Branch != "main" || srv.puts[0].Message != "dynamic: 2024-01-02.md" {
		t.Errorf("Unexpected PUT bodies %+v", srv.puts)
	}
	if srv.puts[0].SHA != "" || srv.puts[1].SHA != sha([]byte("v1")) {
		t.Errorf("Expected create without sha and update with sha, got %+v", srv.puts)
	}
}

func TestStaleHashIsVersionConflict(t *testing.T) {
	srv := &contentsServer{files: map[string][]byte{"posts/2024-01-02.md": []byte("theirs")}, token: "secret"}
	c := newTestClient(t, srv)

	_, err := c.Put(context.Background(), ref.WithHash("stale"), []byte("mine"), "m")
	if !backend.Is(err, backend.KindVersionConflict) {
		t.Fatalf("Expected VersionConflict, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusConflict {
		t.Errorf("Expected HTTPError 409 in chain, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		headers map[string]string
		want    backend.Kind
	}{
		{"unauthorized", 401, `{"message":"Bad credentials"}`, nil, backend.KindAuthInvalid},
		{"forbidden", 403, `{"message":"Resource not accessible"}`, nil, backend.KindPermissionDenied},
		{"rate limited", 403, `{"message":"API rate limit exceeded"}`, map[string]string{"X-RateLimit-Remaining": "0"}, backend.KindPermissionDenied},
		{"not found", 404, `{"message":"Not Found"}`, nil, backend.KindNotFound},
		{"sha mismatch 422", 422, `{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`, nil, backend.KindVersionConflict},
		{"other 422", 422, `{"message":"Invalid path"}`, nil, backend.KindOther},
		{"server error", 502, ``, nil, backend.KindNetworkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			_, err := c.Put(context.Background(), ref, []byte("x"), "m")
			if got := backend.KindOf(err); got != tt.want {
				t.Errorf("Expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "t", 50*time.Millisecond)
	_, err := c.Fetch(context.Background(), ref)
	if !backend.Is(err, backend.KindTimeout) {
		t.Errorf("Expected Timeout, got %v", err)
	}
}

func TestNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "t", time.Second)
	_, err := c.Fetch(context.Background(), ref)
	if !backend.Is(err, backend.KindNetworkUnavailable) {
		t.Errorf("Expected NetworkUnavailable, got %v", err)
	}
}

func TestContentsPathEscapes(t *testing.T) {
	got := contentsPath(model.RemoteFileRef{Owner: "a", Repo: "b", Path: "/dir with space/日記.md"})
	if got != "/repos/a/b/contents/dir%20with%20space/%E6%97%A5%E8%A8%98.md" {
		t.Errorf("Unexpected path %q", got)
	}
}
