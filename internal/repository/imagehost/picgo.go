package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/debemdeboas/dailywrite/internal/backend"
)

const (
	DefaultPicGoEndpoint = "http://localhost:36677/upload"
	DefaultTimeout       = 30 * time.Second
)

// PicGo posts images as multipart forms to a PicGo style HTTP endpoint.
type PicGo struct {
	endpoint   string
	token      string
	field      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewPicGo(endpoint, token, field string, timeout time.Duration) *PicGo {
	if field == "" {
		field = "file"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PicGo{
		endpoint:   endpoint,
		token:      token,
		field:      field,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PicGo) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, contentType, err := p.form(name, mimeType, data)
	if err != nil {
		return "", backend.New(backend.ImageHost, backend.KindUploadFailed, "upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", backend.New(backend.ImageHost, backend.KindUploadFailed, "upload", err)
	}
	req.Header.Set("Content-Type", contentType)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		cerr := backend.Classify(backend.ImageHost, "upload", err)
		if backend.Is(cerr, backend.KindTimeout) {
			return "", cerr
		}
		return "", backend.New(backend.ImageHost, backend.KindUploadFailed, "upload", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", backend.New(backend.ImageHost, backend.KindUploadFailed, "upload", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", backend.Errorf(backend.ImageHost, backend.KindUploadFailed, "upload",
			"http %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", backend.Errorf(backend.ImageHost, backend.KindUploadFailed, "upload", "unparseable response: %v", err)
	}
	u := FindURL(decoded)
	if u == "" {
		return "", backend.Errorf(backend.ImageHost, backend.KindUploadFailed, "upload", "no image URL in response")
	}

	hostLogger.Info().Str("name", name).Str("url", u).Msg("Image uploaded")
	return u, nil
}

func (p *PicGo) form(name, mimeType string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, field := range []string{p.field, "files[]"} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		if mimeType != "" {
			h.Set("Content-Type", mimeType)
		} else {
			h.Set("Content-Type", "application/octet-stream")
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.WriteField("filename", name); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
