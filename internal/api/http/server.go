// Package http exposes the session and device services as a local JSON API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/service"
)

// Readiness reports whether the session store has finished loading.
type Readiness interface {
	Ready() bool
}

// Server holds the HTTP handlers.
type Server struct {
	auth      *service.Auth
	devices   *service.Devices
	readiness Readiness
	gatherer  prometheus.Gatherer
	logger    *logger.Logger
}

// NewServer creates a Server.
func NewServer(
	auth *service.Auth,
	devices *service.Devices,
	readiness Readiness,
	gatherer prometheus.Gatherer,
	logger *logger.Logger,
) *Server {
	return &Server{
		auth:      auth,
		devices:   devices,
		readiness: readiness,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleSignOut)
		r.Post("/login", s.handleLogin)
		r.Patch("/profile", s.handleUpdateProfile)
		r.Get("/welcome", s.handleWelcome)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Post("/qr", s.handleRegisterQR)
		r.Post("/serial", s.handleRegisterSerial)
		r.Delete("/{deviceID}", s.handleRemoveDevice)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Health

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Session

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Profile       *model.Profile `json:"profile"`
}

func newSessionResponse(sess model.Session) sessionResponse {
	return sessionResponse{Authenticated: sess.Authenticated(), Profile: sess.Profile}
}

type loginRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	// An unloaded store reads as signed out; callers must not act on that.
	if !s.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	// ?force=1 re-authenticates: the stored session is dropped before it is read.
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		s.auth.SignOut(r.Context())
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.auth.Session()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_token", Message: service.RetryMessage})
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.auth.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	sess, err := s.auth.UpdateDisplayName(r.Context(), req.Name)
	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return
	case errors.Is(err, model.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, "invalid_profile")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	name, ok := s.auth.ConsumeWelcome(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// Devices

type qrRequest struct {
	RoomType string `json:"roomType"`
}

type serialRequest struct {
	Serial   string `json:"serial"`
	RoomType string `json:"roomType"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		s.devices.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, s.devices.List(r.Context()))
}

func (s *Server) handleRegisterQR(w http.ResponseWriter, r *http.Request) {
	var req qrRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	room, err := model.ParseRoomType(req.RoomType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_room_type")
		return
	}

	rec, err := s.devices.RegisterQR(r.Context(), room)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRegisterSerial(w http.ResponseWriter, r *http.Request) {
	var req serialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	room, err := model.ParseRoomType(req.RoomType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_room_type")
		return
	}

	rec, err := s.devices.RegisterSerial(r.Context(), req.Serial, room)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Remove(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		s.writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidSerial):
		writeError(w, http.StatusBadRequest, "invalid_serial")
	case errors.Is(err, model.ErrInvalidRoomType):
		writeError(w, http.StatusBadRequest, "invalid_room_type")
	case errors.Is(err, model.ErrDeviceAlreadyRegistered):
		writeError(w, http.StatusConflict, "already_registered")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, model.ErrRemoteFetch):
		writeError(w, http.StatusBadGateway, "remote_error")
	default:
		s.logger.Error("HTTP device request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// Helpers

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}
