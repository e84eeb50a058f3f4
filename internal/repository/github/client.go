// Package github talks to a GitHub compatible "contents" API: read a file's
// version token and write a file conditionally on it.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/model"
)

var githubLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	githubLogger = l
}

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 15 * time.Second

	apiVersion = "2022-11-28"
	userAgent  = "dailywrite"
)

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func contentsPath(ref model.RemoteFileRef) string {
	segments := strings.Split(strings.Trim(ref.Path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), strings.Join(segments, "/"))
}

// Fetch returns ref carrying the file's current version token. A missing
// file is reported as backend.KindNotFound.
func (c *Client) Fetch(ctx context.Context, ref model.RemoteFileRef) (model.RemoteFileRef, error) {
	var out contentResponse
	q := url.Values{}
	if ref.Branch != "" {
		q.Set("ref", ref.Branch)
	}
	if err := c.doJSON(ctx, "fetch", http.MethodGet, contentsPath(ref), q, nil, &out); err != nil {
		return ref, err
	}
	if out.Type != "" && out.Type != "file" {
		return ref, backend.Errorf(backend.Remote, backend.KindOther, "fetch", "%s is a %s, not a file", ref.Path, out.Type)
	}
	return ref.WithHash(out.SHA), nil
}

// Read returns the decoded file content and its version token.
func (c *Client) Read(ctx context.Context, ref model.RemoteFileRef) ([]byte, model.RemoteFileRef, error) {
	var out contentResponse
	q := url.Values{}
	if ref.Branch != "" {
		q.Set("ref", ref.Branch)
	}
	if err := c.doJSON(ctx, "read", http.MethodGet, contentsPath(ref), q, nil, &out); err != nil {
		return nil, ref, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return nil, ref, backend.New(backend.Remote, backend.KindOther, "read", err)
	}
	return data, ref.WithHash(out.SHA), nil
}

// Put writes content to ref. A non-empty ref.ContentHash makes the write
// conditional; a stale one is reported as backend.KindVersionConflict.
func (c *Client) Put(ctx context.Context, ref model.RemoteFileRef, content []byte, message string) (model.RemoteFileRef, error) {
	body := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  ref.Branch,
		SHA:     ref.ContentHash,
	}
	var out putResponse
	if err := c.doJSON(ctx, "put", http.MethodPut, contentsPath(ref), nil, body, &out); err != nil {
		return ref, err
	}
	githubLogger.Info().
		Str("ref", ref.String()).
		Str("commit", out.Commit.SHA).
		Msg("Remote file written")
	return ref.WithHash(out.Content.SHA), nil
}

// Ping checks that the repository is reachable with the configured token.
func (c *Client) Ping(ctx context.Context, owner, repo string) error {
	return c.doJSON(ctx, "ping", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), nil, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, requestPath string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return backend.New(backend.Remote, backend.KindOther, op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	u := c.baseURL + requestPath
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return backend.New(backend.Remote, backend.KindOther, op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backend.Classify(backend.Remote, op, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	githubLogger.Debug().
		Str("method", method).
		Str("path", requestPath).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Contents API call")

	if readErr != nil {
		return backend.Classify(backend.Remote, op, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return backend.New(backend.Remote, backend.KindOther, op, errors.Wrap(err, "decode response"))
		}
		return nil
	}

	var errPayload struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	httpErr := &HTTPError{
		StatusCode:       resp.StatusCode,
		Message:          errPayload.Message,
		DocumentationURL: errPayload.DocumentationURL,
	}
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		httpErr.Message = "rate limit exceeded: " + httpErr.Message
	}
	return &backend.Error{Backend: backend.Remote, Kind: statusKind(resp.StatusCode, errPayload.Message), Op: op, Err: errors.WithStack(httpErr)}
}

func statusKind(status int, message string) backend.Kind {
	switch {
	case status == http.StatusConflict:
		return backend.KindVersionConflict
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(message), "sha"):
		return backend.KindVersionConflict
	case status == http.StatusUnauthorized:
		return backend.KindAuthInvalid
	case status == http.StatusForbidden:
		return backend.KindPermissionDenied
	case status == http.StatusNotFound:
		return backend.KindNotFound
	case status >= 500:
		return backend.KindNetworkUnavailable
	default:
		return backend.KindOther
	}
}
