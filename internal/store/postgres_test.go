package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"rollcall/server/internal/model"
)

// openTestDB connects to the database named by DATABASE_URL. Integration
// tests are skipped unless INTEGRATION_TESTS=1.
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgres(pool)
}

func TestPostgresStudentRoundTrip(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()

	student := model.Student{
		ID:           "it-s1",
		PasswordHash: "hash",
		Name:         "Integration Student",
		Classroom:    "IT-101",
		Branch:       "CSE",
		Semester:     4,
		Attendance: model.AttendanceMap{
			"2025-03-10": {
				"timer_1741597200": {
					Status:    model.StatusPresent,
					Subject:   "Timer Session",
					Classroom: "IT-101",
					StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
					EndTime:   time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
					Branch:    "CSE",
					Semester:  4,
				},
			},
		},
	}
	if err := pg.PutStudent(ctx, student); err != nil {
		t.Fatalf("put student: %v", err)
	}
	t.Cleanup(func() { _ = pg.DeleteStudent(ctx, student.ID) })

	got, err := pg.GetStudent(ctx, student.ID)
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	entry, ok := got.Attendance["2025-03-10"]["timer_1741597200"]
	if !ok {
		t.Fatalf("attendance map lost in round trip: %+v", got.Attendance)
	}
	if entry.Status != model.StatusPresent || entry.Subject != "Timer Session" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestPostgresActiveSessionConstraint(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()

	teacher := model.Teacher{
		ID:           "it-t1",
		PasswordHash: "hash",
		Email:        "it-t1@example.edu",
		Classrooms:   []string{"IT-101"},
		BSSIDMapping: map[string]string{"IT-101": "aa:bb:cc:dd:ee:ff"},
	}
	if err := pg.PutTeacher(ctx, teacher); err != nil {
		t.Fatalf("put teacher: %v", err)
	}

	start := time.Now().UTC().Truncate(time.Second)
	first := model.Session{
		ID:        "it-sess-1",
		TeacherID: teacher.ID,
		Classroom: "IT-101",
		Subject:   "Networks",
		StartTime: start,
	}
	if err := pg.PutSession(ctx, first); err != nil {
		t.Fatalf("put session: %v", err)
	}
	t.Cleanup(func() {
		end := time.Now().UTC()
		first.EndTime = &end
		_ = pg.PutSession(ctx, first)
	})

	got, err := pg.ActiveSessionForClassroom(ctx, "IT-101")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("active session = %q, want %q", got.ID, first.ID)
	}

	// The partial unique index rejects a second open session per classroom.
	second := first
	second.ID = "it-sess-2"
	if err := pg.PutSession(ctx, second); err == nil {
		end := time.Now().UTC()
		second.EndTime = &end
		_ = pg.PutSession(ctx, second)
		t.Fatal("second active session accepted")
	}

	tfc, err := pg.TeacherForClassroom(ctx, "IT-101")
	if err != nil {
		t.Fatalf("teacher for classroom: %v", err)
	}
	if tfc.BSSIDMapping["IT-101"] != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("bssid mapping = %+v", tfc.BSSIDMapping)
	}
}

func TestPostgresSettingsRow(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()

	settings, err := pg.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	original := settings

	settings.AuthorizedBSSID = "11:22:33:44:55:66"
	if err := pg.PutSettings(ctx, settings); err != nil {
		t.Fatalf("put settings: %v", err)
	}
	t.Cleanup(func() { _ = pg.PutSettings(ctx, original) })

	got, err := pg.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.AuthorizedBSSID != "11:22:33:44:55:66" {
		t.Fatalf("oracle = %q", got.AuthorizedBSSID)
	}
	if _, err := pg.GetStudent(ctx, "no-such-student"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing student = %v, want ErrNotFound", err)
	}
}
