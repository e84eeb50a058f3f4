package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/debemdeboas/dailywrite/internal/app"
	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/draft"
	"github.com/debemdeboas/dailywrite/internal/logger"
	"github.com/debemdeboas/dailywrite/internal/metrics"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/render"
	"github.com/debemdeboas/dailywrite/internal/routes"
	"github.com/debemdeboas/dailywrite/internal/sse"
)

const (
	previewPlaceholder = "Start typing in the editor to see a preview here."
	historyLimit       = 20
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	log := logger.New(os.Getenv(config.EnvLogLevel))
	app.SetLoggers(log)

	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file")
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.New(cfg.Logging.Level)
	app.SetLoggers(log)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:     newServer(a, log).handler(),
		ReadTimeout: 15 * time.Second,
		// SSE streams stay open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	log.Info().Str("addr", srv.Addr).Msg("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server stopped")
	}
}

type server struct {
	app     *app.App
	clients *sse.SSEClients
	log     zerolog.Logger
}

func newServer(a *app.App, log zerolog.Logger) *server {
	s := &server{app: a, clients: sse.NewSSEClients(), log: log}
	a.Session.Subscribe(s.handleDraftChanged)
	return s
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(routes.RobotsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /"))
	})

	mux.Handle(routes.MetricsPath, promhttp.Handler())
	mux.HandleFunc(routes.SSEPath, s.eventsHandler)
	mux.HandleFunc(routes.APIDraft, s.serveDraft)
	mux.HandleFunc(routes.APIPublish, s.servePublish)
	mux.HandleFunc(routes.APIImages, s.serveImages)
	mux.HandleFunc(routes.APIGrant, s.serveGrant)
	mux.HandleFunc(routes.APIHistory, s.serveHistory)
	mux.HandleFunc(routes.APIRemote, s.serveRemote)
	mux.Handle(
		routes.PartialsDraftPreview,
		http.HandlerFunc(s.midWithDraftSaving(serveDraftPreview)),
	)

	securedMux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routes.RobotsPath {
			mux.ServeHTTP(w, r)
		} else {
			secureHeaders(mux.ServeHTTP)(w, r)
		}
	})

	var h http.Handler = cacheIt(securedMux)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Observe(dur.Seconds())
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("Request")
	})(h)
	h = cors.New(cors.Options{
		AllowedOrigins: s.app.Config().Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Last-Event-ID"},
	}).Handler(h)
	return hlog.NewHandler(s.log)(h)
}

type draftRequest struct {
	Text   string `json:"text"`
	Cursor *int   `json:"cursor"`
	// Save persists immediately instead of waiting for the autosave.
	Save bool `json:"save"`
}

// draftResponse is the draft state plus the images it references.
type draftResponse struct {
	draft.State
	Images []string `json:"images"`
	// AutosaveError is set while the last autosave has failed.
	AutosaveError string `json:"autosave_error,omitempty"`
}

func (s *server) draftState() draftResponse {
	st := s.app.Session.State()
	images := render.CachedImageRefs([]byte(st.Text))
	if images == nil {
		images = []string{}
	}
	resp := draftResponse{State: st, Images: images}
	if err := s.app.Session.Err(); err != nil {
		resp.AutosaveError = backend.Describe(err)
	}
	return resp
}

func (s *server) serveDraft(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.draftState())
	case http.MethodPut:
		var req draftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid draft", http.StatusBadRequest)
			return
		}
		if req.Save {
			if err := s.app.Session.Save(req.Text); err != nil {
				writeError(w, err)
				return
			}
		} else {
			cursor := len([]rune(req.Text))
			if req.Cursor != nil {
				cursor = *req.Cursor
			}
			s.app.Session.Edit(req.Text, cursor)
		}
		writeJSON(w, http.StatusOK, s.draftState())
	case http.MethodDelete:
		if err := s.app.Session.Save(""); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.draftState())
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// publishRequest is the answer policy for a publish started over HTTP,
// where nobody is around to answer prompts.
type publishRequest struct {
	OnConflict  string `json:"on_conflict"`
	NewFileName string `json:"new_file_name"`
	OnFailure   string `json:"on_failure"`
}

func (p publishRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.OnConflict, validation.In("overwrite", "append", "newfile", "cancel")),
		validation.Field(&p.NewFileName, validation.When(p.OnConflict == "newfile", validation.Required)),
		validation.Field(&p.OnFailure, validation.In("retry", "export", "cancel")),
	)
}

// prompter answers every question the publish may ask from the policy.
// Directory selection is always dismissed.
func (p publishRequest) prompter() *prompt.Scripted {
	onConflict, onFailure := p.OnConflict, p.OnFailure
	if onConflict == "" {
		onConflict = "cancel"
	}
	if onFailure == "" {
		onFailure = "cancel"
	}
	s := prompt.NewScripted().
		Always(prompt.QuestionConflict, onConflict).
		Always(prompt.QuestionLocalFailure, onFailure).
		Always(prompt.QuestionRemoteFailure, onFailure)
	if p.NewFileName != "" {
		s.Always(prompt.QuestionNewFileName, p.NewFileName)
	}
	return s
}

type publishResponse struct {
	Outcome model.PublishOutcome `json:"outcome"`
	Error   string               `json:"error,omitempty"`
	Kind    string               `json:"kind,omitempty"`
	Notes   []string             `json:"notes,omitempty"`
}

func (s *server) servePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var req publishRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid publish request", http.StatusBadRequest)
			return
		}
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := req.prompter()
	out, err := s.app.Publish(r.Context(), p)
	resp := publishResponse{Outcome: out, Notes: p.Notes()}
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Publish over HTTP failed")
		resp.Error = backend.Describe(err)
		resp.Kind = backend.KindOf(err).String()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type imageResponse struct {
	Placement model.AssetPlacement `json:"placement"`
	Markdown  string               `json:"markdown"`
}

func (s *server) serveImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxImageUpload)
	f, hdr, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image required", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	blob := model.Blob{Name: hdr.Filename, MIME: hdr.Header.Get(config.HCType), Data: data}
	pl, err := s.app.Paste(r.Context(), nil, blob, false)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("image", hdr.Filename).Msg("Paste failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageResponse{Placement: pl, Markdown: pl.Markdown()})
}

type grantRequest struct {
	Dir string `json:"dir"`
}

func (g grantRequest) Validate() error {
	return validation.ValidateStruct(&g, validation.Field(&g.Dir, validation.Required))
}

func (s *server) serveGrant(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		if err := s.app.Revoke(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid grant request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := s.app.Grant(r.Context(), req.Dir)
	if err != nil {
		writeError(w, err)
		return
	}
	root, _ := s.app.Local.Root()
	writeJSON(w, http.StatusOK, map[string]string{"root": root, "target_dir": target})
}

type remoteResponse struct {
	Enabled bool   `json:"enabled"`
	Repo    string `json:"repo,omitempty"`
}

// serveRemote checks the remote settings against the repository.
func (s *server) serveRemote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	rc := s.app.Config().Remote
	if !rc.Enabled {
		writeJSON(w, http.StatusOK, remoteResponse{})
		return
	}
	if err := s.app.CheckRemote(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteResponse{Enabled: true, Repo: rc.Repo})
}

func (s *server) serveHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	limit := historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := s.app.History.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recent == nil {
		recent = []model.PublishOutcome{}
	}
	writeJSON(w, http.StatusOK, recent)
}

// midWithDraftSaving feeds the previewed content into the draft session so
// typing in the editor is autosaved.
func (s *server) midWithDraftSaving(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		content := r.FormValue("content")
		cursor := len([]rune(content))
		if v := r.FormValue("cursor"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cursor = n
			}
		}
		if content != s.app.Session.Text() {
			s.app.Session.Edit(content, cursor)
		}

		next.ServeHTTP(w, r)
	}
}

func serveDraftPreview(w http.ResponseWriter, r *http.Request) {
	content := r.FormValue("content")
	if content == "" {
		content = previewPlaceholder
	}

	htmlContent := render.RenderMarkdownCached([]byte(content))

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write(htmlContent)
}

func cacheIt(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		h(w, r)
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}

func (s *server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	draftID := draft.ID(r.URL.Query().Get("draft"))
	if draftID == "" {
		draftID = s.app.Session.ID()
	}

	w.Header().Set(config.HCType, config.CTypeSSE)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := sse.NewClient(draftID)
	s.clients.Add(client)

	log := hlog.FromRequest(r)
	log.Debug().Str("draft_id", string(draftID)).Msg("New SSE client connected")

	defer func() {
		s.clients.Delete(client)
		log.Debug().Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: draft\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func (s *server) handleDraftChanged(st draft.State) {
	msg, err := json.Marshal(st)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode draft state")
		return
	}
	s.clients.Broadcast(st.ID, string(msg))
}

func statusFor(err error) int {
	switch backend.KindOf(err) {
	case backend.KindEmptyInput:
		return http.StatusBadRequest
	case backend.KindBusy, backend.KindVersionConflict, backend.KindUserCancelled:
		return http.StatusConflict
	case backend.KindNoGrant:
		return http.StatusPreconditionFailed
	case backend.KindPermissionDenied:
		return http.StatusForbidden
	case backend.KindNotFound:
		return http.StatusNotFound
	case backend.KindAuthInvalid, backend.KindNetworkUnavailable, backend.KindUploadFailed:
		return http.StatusBadGateway
	case backend.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"error": backend.Describe(err),
		"kind":  backend.KindOf(err).String(),
	})
}
