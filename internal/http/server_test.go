package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollcall/server/internal/config"
	"rollcall/server/internal/engine"
	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		JWTSecret: "test-secret",
		JWTIssuer: "test-issuer",
		JWTTTL:    15 * time.Minute,
	}
	mem := store.NewMemory(model.Settings{
		CheckinInterval: time.Minute,
		TimerDuration:   30 * time.Minute,
	})
	eng := engine.New(mem, nil, engine.Config{}, nil)
	server := NewServer(cfg, eng, nil, nil)
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app
}

func doReq(t *testing.T, method, url, token string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signupTeacher(t *testing.T, app *httptest.Server) string {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.URL+"/teacher/signup", "", map[string]interface{}{
		"id":         "t1",
		"email":      "t1@example.edu",
		"password":   "hunter2!",
		"name":       "Teacher One",
		"classrooms": []string{"A-101"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/teacher/login", "", map[string]string{
		"id": "t1", "password": "hunter2!",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &login)
	if login.Token == "" {
		t.Fatal("login returned empty token")
	}
	return login.Token
}

func registerStudent(t *testing.T, app *httptest.Server, teacherToken, id string) {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.URL+"/teacher/register_student", teacherToken, map[string]interface{}{
		"id":        id,
		"password":  "s3cret!",
		"name":      "Student " + id,
		"classroom": "A-101",
		"branch":    "CSE",
		"semester":  4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register student: expected 201, got %d", resp.StatusCode)
	}
}

func loginStudent(t *testing.T, app *httptest.Server, id, deviceID string) string {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.URL+"/student/login", "", map[string]string{
		"id": id, "password": "s3cret!", "device_id": deviceID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("student login: expected 200, got %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &login)
	return login.Token
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	resp := doReq(t, http.MethodGet, app.URL+"/teacher/get_students", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/teacher/get_students", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestRoleSeparation(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")
	studentToken := loginStudent(t, app, "s1", "dev1")

	// Student token cannot reach teacher routes and vice versa.
	resp := doReq(t, http.MethodGet, app.URL+"/teacher/get_students", studentToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/student/get_status", teacherToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestStudentLoginDeviceBinding(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")

	resp := doReq(t, http.MethodPost, app.URL+"/student/login", "", map[string]string{
		"id": "s1", "password": "s3cret!", "device_id": "dev1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var login struct {
		Token          string `json:"token"`
		ClassroomBSSID string `json:"classroom_bssid"`
	}
	decodeBody(t, resp, &login)

	// Same account on a second device is locked out.
	resp = doReq(t, http.MethodPost, app.URL+"/student/login", "", map[string]string{
		"id": "s1", "password": "s3cret!", "device_id": "dev2",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for second device, got %d", resp.StatusCode)
	}

	// Wrong password never reaches the device check.
	resp = doReq(t, http.MethodPost, app.URL+"/student/login", "", map[string]string{
		"id": "s1", "password": "wrong", "device_id": "dev1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestCheckinAndSessionFlow(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")

	// Configure the classroom access point.
	resp := doReq(t, http.MethodPost, app.URL+"/teacher/update_bssid", teacherToken, map[string]string{
		"classroom": "A-101", "bssid": "aa:bb:cc:dd:ee:ff",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update_bssid: expected 200, got %d", resp.StatusCode)
	}

	studentToken := loginStudent(t, app, "s1", "dev1")

	resp = doReq(t, http.MethodPost, app.URL+"/teacher/start_session", teacherToken, map[string]interface{}{
		"classroom": "A-101", "subject": "Networks", "branch": "CSE", "semester": 4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start_session: expected 201, got %d", resp.StatusCode)
	}
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &session)

	// Duplicate session for the same classroom conflicts.
	resp = doReq(t, http.MethodPost, app.URL+"/teacher/start_session", teacherToken, map[string]interface{}{
		"classroom": "A-101", "subject": "Databases", "branch": "CSE", "semester": 4,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate session: expected 409, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/student/checkin", studentToken, map[string]string{
		"bssid": "aa:bb:cc:dd:ee:ff",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d", resp.StatusCode)
	}
	var checkin struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &checkin)
	if checkin.Status != "present" {
		t.Fatalf("checkin status = %q, want present", checkin.Status)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/teacher/get_status/A-101", teacherToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get_status: expected 200, got %d", resp.StatusCode)
	}
	var status struct {
		AuthorizedBSSID string `json:"authorized_bssid"`
		Students        map[string]struct {
			Status string `json:"status"`
		} `json:"students"`
	}
	decodeBody(t, resp, &status)
	if status.AuthorizedBSSID != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("authorized bssid = %q", status.AuthorizedBSSID)
	}
	if status.Students["s1"].Status != "present" {
		t.Fatalf("s1 status = %q, want present", status.Students["s1"].Status)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/teacher/end_session", teacherToken, map[string]string{
		"session_id": session.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end_session: expected 200, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/student/get_attendance", studentToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get_attendance: expected 200, got %d", resp.StatusCode)
	}
	var attendance struct {
		Attendance map[string]map[string]struct {
			Status  string `json:"status"`
			Subject string `json:"subject"`
		} `json:"attendance"`
	}
	decodeBody(t, resp, &attendance)
	found := false
	for _, day := range attendance.Attendance {
		for _, entry := range day {
			if entry.Subject == "Networks" && entry.Status == "present" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("no present Networks entry in %v", attendance.Attendance)
	}
}

func TestMismatchedCheckinStaysAbsent(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")
	studentToken := loginStudent(t, app, "s1", "dev1")

	resp := doReq(t, http.MethodPost, app.URL+"/student/checkin", studentToken, map[string]string{
		"bssid": "ff:ff:ff:ff:ff:ff",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d", resp.StatusCode)
	}
	var checkin struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &checkin)
	if checkin.Status != "absent" {
		t.Fatalf("checkin status = %q, want absent", checkin.Status)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/student/timer/start", studentToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("timer start after foreign checkin: expected 403, got %d", resp.StatusCode)
	}
}

func TestManualOverride(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")

	resp := doReq(t, http.MethodPost, app.URL+"/teacher/manual_override", teacherToken, map[string]string{
		"student_id": "s1", "status": "present",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override: expected 200, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/teacher/manual_override", teacherToken, map[string]string{
		"student_id": "s1", "status": "late",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad override status: expected 400, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/teacher/manual_override", teacherToken, map[string]string{
		"student_id": "ghost", "status": "present",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown student: expected 404, got %d", resp.StatusCode)
	}
}

func TestRandomRingNeedsTwoStudents(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")

	resp := doReq(t, http.MethodGet, app.URL+"/teacher/random_ring/A-101", teacherToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 with one student, got %d", resp.StatusCode)
	}

	registerStudent(t, app, teacherToken, "s2")
	resp = doReq(t, http.MethodGet, app.URL+"/teacher/random_ring/A-101", teacherToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with two students, got %d", resp.StatusCode)
	}
	var ring struct {
		Student studentSummary `json:"student"`
	}
	decodeBody(t, resp, &ring)
	if ring.Student.ID != "s1" && ring.Student.ID != "s2" {
		t.Fatalf("picked unexpected student %q", ring.Student.ID)
	}
}

func TestSessionCodesUnavailableWithoutRedis(t *testing.T) {
	app := newTestApp(t)
	teacherToken := signupTeacher(t, app)
	registerStudent(t, app, teacherToken, "s1")
	studentToken := loginStudent(t, app, "s1", "dev1")

	resp := doReq(t, http.MethodPost, app.URL+"/teacher/session_code", teacherToken, map[string]string{
		"classroom": "A-101",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("session_code: expected 503, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/student/checkin_code", studentToken, map[string]string{
		"code": "123456",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("checkin_code: expected 503, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, err := http.Get(app.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}
}
