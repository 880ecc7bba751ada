// Package api exposes the credential server's public surface: login, the
// v2/v3 upload form endpoints over plain HTTP, the multiplexed websocket
// carrying the same operations, and the reference origin routes.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ozolins/attachup/internal/common"
	"github.com/ozolins/attachup/internal/logging"
	"github.com/ozolins/attachup/internal/server/auth"
	sc "github.com/ozolins/attachup/internal/server/config"
	"github.com/ozolins/attachup/internal/server/forms"
	"github.com/ozolins/attachup/internal/server/origin"
)

type HTTPServer struct {
	config *sc.Config
	logger logging.Logger
	issuer *forms.Issuer
	origin *origin.Origin
}

func NewHTTPServer(c *sc.Config, l logging.Logger, issuer *forms.Issuer, o *origin.Origin) *HTTPServer {
	return &HTTPServer{
		config: c,
		logger: l.With("module", "http_server"),
		issuer: issuer,
		origin: o,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.config.Password)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(uuid.NewString(), []byte(s.config.SecretKey), s.config.TokenValidityDuration)
	if err != nil {
		s.logger.Error(r.Context(), "generating token", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// clientID extracts and validates the bearer token, returning the client ID
// it was issued to.
func (s *HTTPServer) clientID(r *http.Request) (string, error) {
	header := r.Header.Get(common.AccessTokenHeaderName)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", common.ErrUnauthorized
	}
	id, err := auth.GetClientIDFromToken(token, []byte(s.config.SecretKey))
	if err != nil {
		return "", common.ErrUnauthorized
	}
	return id, nil
}

// withAuth wraps a handler with bearer-token validation.
func (s *HTTPServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.clientID(r); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleFormV2(w http.ResponseWriter, r *http.Request) {
	form, err := s.issuer.IssueV2()
	if err != nil {
		s.logger.Error(r.Context(), "issuing v2 form", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (s *HTTPServer) handleFormV3(w http.ResponseWriter, r *http.Request) {
	form, err := s.issuer.IssueV3()
	if err != nil {
		s.logger.Error(r.Context(), "issuing v3 form", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", s.handleLogin)
	mux.HandleFunc("/v1/attachments/form/v2", s.withAuth(s.handleFormV2))
	mux.HandleFunc("/v1/attachments/form/v3", s.withAuth(s.handleFormV3))
	mux.HandleFunc("/v1/ws", s.handleWS)
	mux.HandleFunc("/v1/origin/start", s.origin.HandleStart)
	mux.HandleFunc("/v1/origin/session/", s.origin.HandleSession)
	mux.HandleFunc("/v1/attachments/upload", s.origin.HandleDirect)
	return mux
}

// Handler returns the full route set, exported for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.routes()
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.EndpointAddr,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go s.runSessionGC(ctx)

	s.logger.Info(ctx, "Starting HTTP server", "address", s.config.EndpointAddr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// runSessionGC periodically drops idle resumable sessions.
func (s *HTTPServer) runSessionGC(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.origin.PruneExpired(now); n > 0 {
				s.logger.Info(ctx, "pruned idle sessions", "count", n)
			}
		}
	}
}
