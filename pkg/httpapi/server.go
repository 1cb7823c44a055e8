// Package httpapi exposes registration, lookup and a reply webhook over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/reminders"
	"github.com/smith3v/aquamind/pkg/store"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	engine *reminders.Engine
	router *chi.Mux
}

func New(engine *reminders.Engine) *Server {
	s := &Server{engine: engine, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	s.router.Route("/users", func(r chi.Router) {
		r.Post("/", s.handleRegister)
		r.Get("/{username}", s.handleGetUser)
		r.Post("/{username}/replies", s.handleReply)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

type registerRequest struct {
	Username    string  `json:"username"`
	PhoneNumber string  `json:"phone_number"`
	Gender      string  `json:"gender"`
	Age         int     `json:"age"`
	Weight      float64 `json:"weight"`
}

type userResponse struct {
	store.UserRecord
	State string `json:"state"`
}

type replyRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Response    string  `json:"response"`
	Added       float64 `json:"added"`
	WaterIntake float64 `json:"water_intake"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.engine.Registry().Register(r.Context(), store.Registration{
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		Gender:      req.Gender,
		Age:         req.Age,
		Weight:      req.Weight,
	})
	switch {
	case err == nil, store.IsPersistence(err):
	case errors.Is(err, store.ErrDuplicateUser), errors.Is(err, store.ErrDuplicatePhone):
		writeError(w, http.StatusConflict, err)
		return
	default:
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, s.userResponse(rec))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Registry().Find(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.userResponse(rec))
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reply, err := s.engine.HandleReplyFrom(r.Context(), reminders.SourceAPI, chi.URLParam(r, "username"), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{
		Response:    string(reply.Response),
		Added:       reply.Added,
		WaterIntake: reply.Record.WaterIntake,
	})
}

func (s *Server) userResponse(rec store.UserRecord) userResponse {
	return userResponse{
		UserRecord: rec,
		State:      reminders.StatusOf(rec, s.engine.Options().NotificationLimit).String(),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reminders.ErrInvalidResponse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reminders.ErrNoReminderPending):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
