package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/server/internal/auth"
	"rollcall/server/internal/crypto"
	"rollcall/server/internal/model"
)

type studentLoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

// handleStudentLogin authenticates a student and binds the account to the
// presenting device. While the binding holds, other devices are locked out.
func (s *Server) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req studentLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ID == "" || req.Password == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	student, err := s.engine.Student(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := crypto.CheckPassword(student.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := s.engine.Login(r.Context(), req.ID, req.DeviceID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.JWTTTL, auth.Claims{
		UserID:   student.ID,
		UserType: auth.UserTypeStudent,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	classroomBSSID, err := s.engine.ClassroomBSSID(r.Context(), student.Classroom)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":           token,
		"student":         mapStudentSummary(student),
		"classroom_bssid": classroomBSSID,
	})
}

type checkinRequest struct {
	BSSID string `json:"bssid"`
}

func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req checkinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.engine.Checkin(r.Context(), claims.UserID, claims.DeviceID, req.BSSID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           result.Status,
		"authorized_bssid": result.AuthorizedBSSID,
	})
}

type checkinCodeRequest struct {
	Code string `json:"code"`
}

// handleCheckinCode redeems a teacher-issued code: the code resolves to a
// classroom whose configured BSSID is recorded as the check-in value, so a
// valid code counts as proximity.
func (s *Server) handleCheckinCode(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "codes_unavailable")
		return
	}
	claims := claimsFromContext(r.Context())
	var req checkinCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_code")
		return
	}

	classroom, err := s.redis.Get(r.Context(), sessionCodeKeyPrefix+req.Code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			writeError(w, http.StatusNotFound, "code_invalid_or_expired")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	bssid, err := s.engine.ClassroomBSSID(r.Context(), classroom)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if bssid == "" {
		writeError(w, http.StatusConflict, "classroom_not_configured")
		return
	}
	result, err := s.engine.Checkin(r.Context(), claims.UserID, claims.DeviceID, bssid)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           result.Status,
		"classroom":        classroom,
		"authorized_bssid": result.AuthorizedBSSID,
	})
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.engine.StartTimerForDevice(r.Context(), claims.UserID, claims.DeviceID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.engine.StopTimer(r.Context(), claims.UserID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStudentStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	status, err := s.engine.StudentStatus(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	student, err := s.engine.Student(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	attendance := student.Attendance
	if attendance == nil {
		attendance = model.AttendanceMap{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": student.ID,
		"attendance": attendance,
	})
}

func (s *Server) handleGetActiveSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	student, err := s.engine.Student(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	session, ok, err := s.engine.ActiveSession(r.Context(), student.Classroom)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":  true,
		"session": mapSessionSummary(session),
	})
}

func (s *Server) handleGetTimetableStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	student, err := s.engine.Student(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	branch := student.Branch
	semester := student.Semester
	if raw := r.URL.Query().Get("semester"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			semester = parsed
		}
	}
	timetable, err := s.engine.Timetable(r.Context(), branch, semester)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"branch":   timetable.Branch,
		"semester": timetable.Semester,
		"slots":    timetable.Slots,
	})
}

// handlePing refreshes the device binding so the idle sweep does not evict
// a quiet but connected client.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.engine.TouchDevice(r.Context(), claims.UserID, claims.DeviceID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.engine.CleanupStudent(r.Context(), claims.UserID, claims.DeviceID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}
