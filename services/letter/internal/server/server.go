package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"coverletterai/internal/metrics"
	"coverletterai/internal/ratelimit"
	"coverletterai/internal/util"
	"coverletterai/pkg/domain"
	"coverletterai/services/letter/internal/app"
)

const (
	sessionCookieName     = "letter_session"
	defaultMaxUploadBytes = 10 << 20
	maxJSONBodyBytes      = 1 << 20
	minWriteTimeout       = 60 * time.Second
)

// WriteTimeout is the server write deadline for a generation budget: the
// budget plus slack, never below a minute.
func WriteTimeout(generation, slack time.Duration) time.Duration {
	if d := generation + slack; d > minWriteTimeout {
		return d
	}
	return minWriteTimeout
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	AuthLimiter     *ratelimit.FixedWindowLimiter
	GenerateLimiter *ratelimit.FixedWindowLimiter

	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	AllowedOrigins      []string
	TrustedProxies      *util.TrustedProxies
	SessionCookieSecure bool
	MaxUploadBytes      int64
}

// Server exposes the cover letter HTTP API.
type Server struct {
	app             *app.App
	router          chi.Router
	authLimiter     *ratelimit.FixedWindowLimiter
	generateLimiter *ratelimit.FixedWindowLimiter
	metrics         *metrics.Collector
	gatherer        prometheus.Gatherer
	origins         []string
	trusted         *util.TrustedProxies
	cookieSecure    bool
	maxUpload       int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		router:          chi.NewRouter(),
		authLimiter:     cfg.AuthLimiter,
		generateLimiter: cfg.GenerateLimiter,
		metrics:         cfg.Metrics,
		gatherer:        cfg.Gatherer,
		origins:         cfg.AllowedOrigins,
		trusted:         cfg.TrustedProxies,
		cookieSecure:    cfg.SessionCookieSecure,
		maxUpload:       cfg.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(util.WithRecovery)
	r.Use(util.WithRequestID)
	r.Use(util.WithRequestLog("letter", s.trusted))
	r.Use(util.WithSecurityHeaders)
	r.Use(util.WithCORS(s.origins))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/wake_up", s.handleWakeUp)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(s.rateLimited(s.authLimiter)).Post("/token", s.handleToken)
		r.With(s.rateLimited(s.authLimiter)).Post("/signup", s.handleSignup)
		r.With(s.authenticated).Get("/userdata/{user_id}", s.handleUserData)
	})
	r.With(s.rateLimited(s.authLimiter)).Post("/verify_token", s.handleVerifyToken)

	r.Get("/get_session_id", s.handleSessionID)
	for _, field := range domain.DraftFields {
		r.Post("/set_"+string(field), s.handleSetField(field))
	}
	r.Post("/upload_resume", s.handleUploadResume)
	r.With(s.rateLimited(s.generateLimiter)).Post("/generate_letter", s.handleGenerateLetter)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWakeUp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Backend active")
}

// auth

type userContextKey struct{}

// authenticated resolves the access token in the Authorization header and
// stores the user in the request context.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.app.UserForToken(r.Context(), accessToken(r))
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// accessToken accepts "Bearer <token>" as well as the bare token.
func accessToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func (s *Server) rateLimited(limiter *ratelimit.FixedWindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		retryAfter := strconv.Itoa(int(limiter.Window().Seconds()))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
			if !limiter.Allow(r.Context(), key) {
				util.LoggerFromContext(r.Context()).Warn("rate limited", "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenRequest struct {
	IDToken string `json:"id_token"`
}

type signupRequest struct {
	Email   string `json:"email"`
	IDToken string `json:"id_token"`
}

type verifyTokenRequest struct {
	IDToken string `json:"idToken"`
}

type userTokenResponse struct {
	ID      string `json:"id,omitempty"`
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, app.ErrIDTokenRequired.Error())
		return
	}
	user, err := s.app.ExchangeToken(r.Context(), req.IDToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userTokenResponse{Token: user.Token})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, app.ErrEmailAndIDTokenRequired.Error())
		return
	}
	user, err := s.app.SignUp(r.Context(), req.Email, req.IDToken)
	switch {
	case errors.Is(err, app.ErrUserExists):
		writeJSON(w, http.StatusConflict, userTokenResponse{ID: user.ID, Token: user.Token, Message: err.Error()})
	case err != nil:
		writeAuthError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, userTokenResponse{ID: user.ID, Token: user.Token, Message: "User created successfully"})
	}
}

func (s *Server) handleUserData(w http.ResponseWriter, r *http.Request) {
	caller, ok := userFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, app.ErrTokenRequired.Error())
		return
	}
	user, err := s.app.UserData(caller, chi.URLParam(r, "user_id"))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userTokenResponse{ID: user.ID, Token: user.Token})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	_ = decodeJSON(r, &req)
	uid, err := s.app.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "uid": uid})
}

// drafts

func (s *Server) handleSessionID(w http.ResponseWriter, r *http.Request) {
	sessions := s.app.Sessions()
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if id, err := sessions.Decode(c.Value); err == nil {
			writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
			return
		}
	}
	id := app.NewSessionID()
	value, err := sessions.Encode(id)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("encode session cookie failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessions.Lifetime().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

var fieldSavedMessages = map[domain.DraftField]string{
	domain.FieldResume:         "Resume saved successfully in Redis",
	domain.FieldJobDescription: "Job description saved successfully in Redis",
	domain.FieldJobRole:        "Job role saved successfully in Redis",
	domain.FieldCompany:        "Company saved successfully in Redis",
	domain.FieldStory:          "Professional story saved successfully to Redis",
}

func (s *Server) handleSetField(field domain.DraftField) http.HandlerFunc {
	missing := "No " + app.FieldLabel(field) + " data or session ID provided"
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, missing)
			return
		}
		value, _ := body[string(field)].(string)
		sessionID, _ := body["session_id"].(string)
		format, _ := body["format"].(string)

		var err error
		if field == domain.FieldJobDescription && strings.EqualFold(format, "html") {
			err = s.app.SaveJobDescriptionHTML(r.Context(), sessionID, value)
		} else {
			err = s.app.SaveDraftField(r.Context(), sessionID, field, value)
		}
		switch {
		case errors.Is(err, app.ErrDraftValueRequired):
			writeError(w, http.StatusBadRequest, missing)
		case err != nil:
			util.LoggerFromContext(r.Context()).Error("save draft field failed", "field", field, "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		default:
			writeJSON(w, http.StatusOK, map[string]string{"message": fieldSavedMessages[field]})
		}
	}
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, app.ErrNoFilePart.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("resume")
	if err != nil {
		// A part sent with an empty filename is parsed as a plain value.
		if _, sent := r.MultipartForm.Value["resume"]; sent {
			writeAppError(w, r, app.ErrNoSelectedFile)
			return
		}
		writeError(w, http.StatusBadRequest, app.ErrNoFilePart.Error())
		return
	}
	defer file.Close()

	err = s.app.UploadResume(r.Context(), r.FormValue("session_id"), header.Filename, file)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Resume uploaded and saved successfully"})
}

type generateRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleGenerateLetter(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, app.ErrSessionIDRequired.Error())
		return
	}
	letter, err := s.app.GenerateLetter(r.Context(), req.SessionID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cover_letter": letter})
}

// errors

var errorStatuses = []struct {
	err    error
	status int
}{
	{app.ErrIDTokenRequired, http.StatusBadRequest},
	{app.ErrEmailAndIDTokenRequired, http.StatusBadRequest},
	{app.ErrEmailMismatch, http.StatusBadRequest},
	{app.ErrSessionIDRequired, http.StatusBadRequest},
	{app.ErrNoFilePart, http.StatusBadRequest},
	{app.ErrNoSelectedFile, http.StatusBadRequest},
	{app.ErrInvalidFileFormat, http.StatusBadRequest},
	{app.ErrInvalidIDToken, http.StatusUnauthorized},
	{app.ErrUserNotFound, http.StatusUnauthorized},
	{app.ErrTokenRequired, http.StatusUnauthorized},
	{app.ErrForbidden, http.StatusForbidden},
	{app.ErrUnknownToken, http.StatusNotFound},
	{app.ErrUserExists, http.StatusConflict},
	{app.ErrExtractionFailed, http.StatusInternalServerError},
	{app.ErrGenerationFailed, http.StatusInternalServerError},
}

// classify returns the status and client message for err. Unknown errors
// become a generic 500 and are logged.
func classify(r *http.Request, err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	return http.StatusInternalServerError, "Internal server error"
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(r, err)
	writeError(w, status, msg)
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(r, err)
	writeMessage(w, status, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
