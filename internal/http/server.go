// Package http exposes the attendance engine over the teacher and student
// REST surfaces.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rollcall/server/internal/auth"
	"rollcall/server/internal/config"
	"rollcall/server/internal/engine"
)

type Server struct {
	cfg    config.Config
	engine *engine.Engine
	redis  *redis.Client
	log    *zap.Logger
}

// NewServer wires the HTTP surface. The redis client is optional; when nil
// the session-code endpoints report the feature as unavailable.
func NewServer(cfg config.Config, eng *engine.Engine, rdb *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, engine: eng, redis: rdb, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/teacher", func(r chi.Router) {
		r.Post("/signup", s.handleTeacherSignup)
		r.Post("/login", s.handleTeacherLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware, s.requireTeacher)
			r.Post("/register_student", s.handleRegisterStudent)
			r.Get("/get_students", s.handleGetStudents)
			r.Patch("/update_student/{studentID}", s.handleUpdateStudent)
			r.Delete("/delete_student/{studentID}", s.handleDeleteStudent)
			r.Patch("/update_profile", s.handleUpdateProfile)
			r.Post("/change_password", s.handleChangePassword)
			r.Post("/update_bssid", s.handleUpdateBSSID)
			r.Post("/set_bssid", s.handleSetBSSID)
			r.Post("/start_session", s.handleStartSession)
			r.Post("/end_session", s.handleEndSession)
			r.Get("/get_sessions", s.handleGetSessions)
			r.Get("/get_active_sessions", s.handleGetActiveSessions)
			r.Get("/get_status/{classroom}", s.handleClassroomStatus)
			r.Post("/manual_override", s.handleManualOverride)
			r.Get("/random_ring/{classroom}", s.handleRandomRing)
			r.Post("/session_code", s.handleCreateSessionCode)
			r.Get("/get_timetable", s.handleGetTimetableTeacher)
			r.Post("/update_timetable", s.handleUpdateTimetable)
			r.Get("/get_special_dates", s.handleGetSpecialDates)
			r.Post("/update_special_dates", s.handleUpdateSpecialDates)
		})
	})

	r.Route("/student", func(r chi.Router) {
		r.Post("/login", s.handleStudentLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware, s.requireStudent)
			r.Post("/checkin", s.handleCheckin)
			r.Post("/checkin_code", s.handleCheckinCode)
			r.Post("/timer/start", s.handleStartTimer)
			r.Post("/timer/stop", s.handleStopTimer)
			r.Get("/get_status", s.handleStudentStatus)
			r.Get("/get_attendance", s.handleGetAttendance)
			r.Get("/get_active_session", s.handleGetActiveSession)
			r.Get("/get_timetable", s.handleGetTimetableStudent)
			r.Post("/ping", s.handlePing)
			r.Post("/cleanup_dead_sessions", s.handleCleanup)
		})
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.UserType != auth.UserTypeTeacher {
			writeError(w, http.StatusForbidden, "teacher_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.UserType != auth.UserTypeStudent {
			writeError(w, http.StatusForbidden, "student_only")
			return
		}
		// Keep the device binding fresh so the idle sweep never evicts a
		// student who is actively talking to the server. Errors are not
		// fatal here; handlers enforce the binding themselves.
		if claims.DeviceID != "" {
			if err := s.engine.TouchDevice(r.Context(), claims.UserID, claims.DeviceID); err != nil {
				s.log.Debug("device touch failed", zap.String("student_id", claims.UserID), zap.Error(err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
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
	writeJSON(w, status, map[string]string{"error": code})
}

// writeEngineError maps the engine's sentinel errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, engine.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized")
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request")
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
