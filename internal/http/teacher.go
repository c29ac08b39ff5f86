package http

import (
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rollcall/server/internal/auth"
	"rollcall/server/internal/crypto"
	"rollcall/server/internal/engine"
	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

type teacherSignupRequest struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Name      string   `json:"name"`
	Classroom []string `json:"classrooms"`
	Branches  []string `json:"branches"`
	Semesters []int    `json:"semesters"`
}

type teacherSummary struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	Classrooms   []string          `json:"classrooms"`
	BSSIDMapping map[string]string `json:"bssid_mapping"`
	Branches     []string          `json:"branches"`
	Semesters    []int             `json:"semesters"`
}

func mapTeacherSummary(teacher model.Teacher) teacherSummary {
	return teacherSummary{
		ID:           teacher.ID,
		Email:        teacher.Email,
		Name:         teacher.Name,
		Classrooms:   teacher.Classrooms,
		BSSIDMapping: teacher.BSSIDMapping,
		Branches:     teacher.Branches,
		Semesters:    teacher.Semesters,
	}
}

func (s *Server) handleTeacherSignup(w http.ResponseWriter, r *http.Request) {
	var req teacherSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.ID == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}
	teacher := model.Teacher{
		ID:           req.ID,
		PasswordHash: hash,
		Email:        req.Email,
		Name:         req.Name,
		Classrooms:   req.Classroom,
		Branches:     req.Branches,
		Semesters:    req.Semesters,
	}
	if err := s.engine.RegisterTeacher(r.Context(), teacher); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapTeacherSummary(teacher))
}

type loginRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if (req.ID == "" && req.Email == "") || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	var (
		teacher model.Teacher
		err     error
	)
	if req.ID != "" {
		teacher, err = s.engine.Teacher(r.Context(), req.ID)
	} else {
		teacher, err = s.engine.TeacherByEmail(r.Context(), req.Email)
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := crypto.CheckPassword(teacher.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.JWTTTL, auth.Claims{
		UserID:   teacher.ID,
		UserType: auth.UserTypeTeacher,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"teacher": mapTeacherSummary(teacher),
	})
}

type registerStudentRequest struct {
	ID        string `json:"id"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Classroom string `json:"classroom"`
	Branch    string `json:"branch"`
	Semester  int    `json:"semester"`
}

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}
	student := model.Student{
		ID:           req.ID,
		PasswordHash: hash,
		Name:         req.Name,
		Classroom:    req.Classroom,
		Branch:       req.Branch,
		Semester:     req.Semester,
	}
	if err := s.engine.RegisterStudent(r.Context(), student); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapStudentSummary(student))
}

type studentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Classroom string `json:"classroom"`
	Branch    string `json:"branch"`
	Semester  int    `json:"semester"`
}

func mapStudentSummary(student model.Student) studentSummary {
	return studentSummary{
		ID:        student.ID,
		Name:      student.Name,
		Classroom: student.Classroom,
		Branch:    student.Branch,
		Semester:  student.Semester,
	}
}

func (s *Server) handleGetStudents(w http.ResponseWriter, r *http.Request) {
	filter := store.StudentFilter{
		Classroom: r.URL.Query().Get("classroom"),
		Branch:    r.URL.Query().Get("branch"),
	}
	if raw := r.URL.Query().Get("semester"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Semester = parsed
		}
	}
	students, err := s.engine.Students(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := make([]studentSummary, 0, len(students))
	for _, student := range students {
		resp = append(resp, mapStudentSummary(student))
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateStudentRequest struct {
	Name      *string `json:"name,omitempty"`
	Classroom *string `json:"classroom,omitempty"`
	Branch    *string `json:"branch,omitempty"`
	Semester  *int    `json:"semester,omitempty"`
	Password  *string `json:"password,omitempty"`
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id")
		return
	}
	var req updateStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	update := engine.StudentUpdate{
		Name:      req.Name,
		Classroom: req.Classroom,
		Branch:    req.Branch,
		Semester:  req.Semester,
	}
	if req.Password != nil && strings.TrimSpace(*req.Password) != "" {
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "password_hash_failed")
			return
		}
		update.PasswordHash = &hash
	}
	student, err := s.engine.UpdateStudent(r.Context(), studentID, update)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapStudentSummary(student))
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id")
		return
	}
	if err := s.engine.DeleteStudent(r.Context(), studentID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type updateProfileRequest struct {
	Name       *string  `json:"name,omitempty"`
	Classrooms []string `json:"classrooms,omitempty"`
	Branches   []string `json:"branches,omitempty"`
	Semesters  []int    `json:"semesters,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	teacher, err := s.engine.UpdateTeacherProfile(r.Context(), claims.UserID, engine.TeacherUpdate{
		Name:       req.Name,
		Classrooms: req.Classrooms,
		Branches:   req.Branches,
		Semesters:  req.Semesters,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTeacherSummary(teacher))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	teacher, err := s.engine.Teacher(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := crypto.CheckPassword(teacher.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}
	if err := s.engine.ChangeTeacherPassword(r.Context(), claims.UserID, hash); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type updateBSSIDRequest struct {
	Classroom string `json:"classroom"`
	BSSID     string `json:"bssid"`
}

func (s *Server) handleUpdateBSSID(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req updateBSSIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	mapping, err := s.engine.UpdateTeacherBSSID(r.Context(), claims.UserID, req.Classroom, req.BSSID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bssid_mapping": mapping})
}

type setBSSIDRequest struct {
	BSSID string `json:"bssid"`
}

func (s *Server) handleSetBSSID(w http.ResponseWriter, r *http.Request) {
	var req setBSSIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.engine.SetOracle(r.Context(), req.BSSID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorized_bssid": req.BSSID})
}

type startSessionRequest struct {
	Classroom string `json:"classroom"`
	Subject   string `json:"subject"`
	Branch    string `json:"branch"`
	Semester  int    `json:"semester"`
	AdHoc     bool   `json:"ad_hoc"`
}

type sessionSummary struct {
	ID        string     `json:"id"`
	TeacherID string     `json:"teacher_id"`
	Classroom string     `json:"classroom"`
	Subject   string     `json:"subject"`
	Branch    string     `json:"branch"`
	Semester  int        `json:"semester"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	AdHoc     bool       `json:"ad_hoc"`
	Active    bool       `json:"active"`
}

func mapSessionSummary(session model.Session) sessionSummary {
	return sessionSummary{
		ID:        session.ID,
		TeacherID: session.TeacherID,
		Classroom: session.Classroom,
		Subject:   session.Subject,
		Branch:    session.Branch,
		Semester:  session.Semester,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
		AdHoc:     session.AdHoc,
		Active:    session.Active(),
	}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	session, err := s.engine.StartSession(r.Context(), claims.UserID, req.Classroom, req.Subject, req.Branch, req.Semester, req.AdHoc)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSessionSummary(session))
}

type endSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id")
		return
	}
	session, err := s.engine.EndSession(r.Context(), req.SessionID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSessionSummary(session))
}

func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	sessions, err := s.engine.Sessions(r.Context(), store.SessionFilter{
		TeacherID: claims.UserID,
		Classroom: r.URL.Query().Get("classroom"),
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, mapSessionSummary(session))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.Sessions(r.Context(), store.SessionFilter{ActiveOnly: true})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, mapSessionSummary(session))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassroomStatus(w http.ResponseWriter, r *http.Request) {
	classroom := chi.URLParam(r, "classroom")
	if classroom == "" {
		writeError(w, http.StatusBadRequest, "missing_classroom")
		return
	}
	status, err := s.engine.ClassroomStatus(r.Context(), classroom)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type manualOverrideRequest struct {
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
}

func (s *Server) handleManualOverride(w http.ResponseWriter, r *http.Request) {
	var req manualOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.StudentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id")
		return
	}
	if err := s.engine.SetOverride(r.Context(), req.StudentID, model.AttendanceStatus(req.Status)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRandomRing picks a student to call on: half the time from the
// bottom 30% of the classroom by attendance ratio, half the time from the
// top 30%. Needs at least two students to be meaningful.
func (s *Server) handleRandomRing(w http.ResponseWriter, r *http.Request) {
	classroom := chi.URLParam(r, "classroom")
	if classroom == "" {
		writeError(w, http.StatusBadRequest, "missing_classroom")
		return
	}
	students, err := s.engine.Students(r.Context(), store.StudentFilter{Classroom: classroom})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if len(students) < 2 {
		writeError(w, http.StatusBadRequest, "not_enough_students")
		return
	}

	sort.Slice(students, func(i, j int) bool {
		return attendanceRatio(students[i]) < attendanceRatio(students[j])
	})
	bandSize := len(students) * 30 / 100
	if bandSize < 1 {
		bandSize = 1
	}
	band := students[:bandSize]
	fromTop := rand.Intn(2) == 1
	if fromTop {
		band = students[len(students)-bandSize:]
	}
	picked := band[rand.Intn(len(band))]

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student":  mapStudentSummary(picked),
		"from_top": fromTop,
	})
}

func attendanceRatio(student model.Student) float64 {
	total, present := 0, 0
	for _, day := range student.Attendance {
		for _, entry := range day {
			total++
			if entry.Status == model.StatusPresent {
				present++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total)
}

const sessionCodeKeyPrefix = "session_code:"

type sessionCodeRequest struct {
	Classroom string `json:"classroom"`
}

// handleCreateSessionCode issues a short-lived 6-digit code students can
// check in with instead of a BSSID scan. Codes live in redis with a TTL.
func (s *Server) handleCreateSessionCode(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "codes_unavailable")
		return
	}
	var req sessionCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Classroom == "" {
		writeError(w, http.StatusBadRequest, "missing_classroom")
		return
	}
	code, err := crypto.NewSessionCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	key := sessionCodeKeyPrefix + code
	if err := s.redis.Set(r.Context(), key, req.Classroom, s.cfg.SessionCodeTTL).Err(); err != nil {
		s.log.Error("session code store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"code":       code,
		"expires_in": int(s.cfg.SessionCodeTTL.Seconds()),
	})
}

func (s *Server) handleGetTimetableTeacher(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	semester, _ := strconv.Atoi(r.URL.Query().Get("semester"))
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

type updateTimetableRequest struct {
	Branch   string                `json:"branch"`
	Semester int                   `json:"semester"`
	Slots    []model.TimetableSlot `json:"slots"`
}

func (s *Server) handleUpdateTimetable(w http.ResponseWriter, r *http.Request) {
	var req updateTimetableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	err := s.engine.SetTimetable(r.Context(), model.Timetable{
		Branch:   req.Branch,
		Semester: req.Semester,
		Slots:    req.Slots,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSpecialDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.engine.SpecialDates(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

func (s *Server) handleUpdateSpecialDates(w http.ResponseWriter, r *http.Request) {
	var req model.SpecialDates
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.engine.SetSpecialDates(r.Context(), req); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
