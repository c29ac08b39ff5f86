package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/server/internal/model"
)

func newMemory() *Memory {
	return NewMemory(model.Settings{
		CheckinInterval: time.Minute,
		TimerDuration:   30 * time.Minute,
	})
}

func TestMemorySettingsDefaults(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()

	settings, err := mem.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.AuthorizedBSSID != "" {
		t.Fatalf("fresh store has oracle %q, want empty", settings.AuthorizedBSSID)
	}
	if settings.TimerDuration != 30*time.Minute {
		t.Fatalf("timer duration = %v, want 30m", settings.TimerDuration)
	}

	settings.AuthorizedBSSID = "aa:bb:cc:dd:ee:ff"
	if err := mem.PutSettings(ctx, settings); err != nil {
		t.Fatalf("put settings: %v", err)
	}
	settings, err = mem.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.AuthorizedBSSID != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("oracle = %q after update", settings.AuthorizedBSSID)
	}
}

func TestMemoryLatestCheckinAcrossDevices(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, checkin := range []model.Checkin{
		{StudentID: "s1", DeviceID: "d1", BSSID: "one", Timestamp: base},
		{StudentID: "s1", DeviceID: "d2", BSSID: "two", Timestamp: base.Add(time.Minute)},
		{StudentID: "s1", DeviceID: "d1", BSSID: "three", Timestamp: base.Add(2 * time.Minute)},
	} {
		if err := mem.PutCheckin(ctx, checkin); err != nil {
			t.Fatalf("put checkin %d: %v", i, err)
		}
	}

	latest, err := mem.LatestCheckin(ctx, "s1")
	if err != nil {
		t.Fatalf("latest checkin: %v", err)
	}
	if latest.BSSID != "three" {
		t.Fatalf("latest bssid = %q, want three", latest.BSSID)
	}

	// One row per (student, device): the d1 rewrite replaced the first row.
	checkins, err := mem.ListCheckinsBetween(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list checkins: %v", err)
	}
	if len(checkins) != 2 {
		t.Fatalf("checkin rows = %d, want 2", len(checkins))
	}

	if err := mem.DeleteCheckinsBefore(ctx, base.Add(90*time.Second)); err != nil {
		t.Fatalf("delete before: %v", err)
	}
	checkins, err = mem.ListCheckinsBetween(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list checkins: %v", err)
	}
	if len(checkins) != 1 || checkins[0].BSSID != "three" {
		t.Fatalf("after cutoff delete got %+v, want only the latest", checkins)
	}
}

func TestMemoryActiveSessionForClassroom(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	if err := mem.PutSession(ctx, model.Session{ID: "old", Classroom: "A-101", StartTime: start, EndTime: &end}); err != nil {
		t.Fatalf("put ended session: %v", err)
	}
	if _, err := mem.ActiveSessionForClassroom(ctx, "A-101"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ended session counted as active: %v", err)
	}

	if err := mem.PutSession(ctx, model.Session{ID: "live", Classroom: "A-101", StartTime: end}); err != nil {
		t.Fatalf("put active session: %v", err)
	}
	session, err := mem.ActiveSessionForClassroom(ctx, "A-101")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if session.ID != "live" {
		t.Fatalf("active session = %q, want live", session.ID)
	}
	if _, err := mem.ActiveSessionForClassroom(ctx, "B-202"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong classroom matched: %v", err)
	}

	sessions, err := mem.ListSessions(ctx, SessionFilter{Classroom: "A-101", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "live" {
		t.Fatalf("filtered sessions = %+v", sessions)
	}
}

func TestMemoryStudentFilter(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()

	for _, student := range []model.Student{
		{ID: "s1", Classroom: "A-101", Branch: "CSE", Semester: 4},
		{ID: "s2", Classroom: "A-101", Branch: "ECE", Semester: 4},
		{ID: "s3", Classroom: "B-202", Branch: "CSE", Semester: 6},
	} {
		if err := mem.PutStudent(ctx, student); err != nil {
			t.Fatalf("put student: %v", err)
		}
	}

	students, err := mem.ListStudents(ctx, StudentFilter{Classroom: "A-101"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("classroom filter matched %d, want 2", len(students))
	}
	students, err = mem.ListStudents(ctx, StudentFilter{Branch: "CSE", Semester: 6})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(students) != 1 || students[0].ID != "s3" {
		t.Fatalf("branch+semester filter = %+v", students)
	}
}

func TestMemoryTeacherForClassroom(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()

	if err := mem.PutTeacher(ctx, model.Teacher{
		ID:         "t1",
		Email:      "t1@example.edu",
		Classrooms: []string{"A-101", "B-202"},
	}); err != nil {
		t.Fatalf("put teacher: %v", err)
	}
	teacher, err := mem.TeacherForClassroom(ctx, "B-202")
	if err != nil {
		t.Fatalf("teacher for classroom: %v", err)
	}
	if teacher.ID != "t1" {
		t.Fatalf("teacher = %q, want t1", teacher.ID)
	}
	if _, err := mem.TeacherForClassroom(ctx, "C-303"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown classroom = %v, want ErrNotFound", err)
	}
	if _, err := mem.GetTeacherByEmail(ctx, "t1@example.edu"); err != nil {
		t.Fatalf("get by email: %v", err)
	}
}

func TestMemoryIdleDevices(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := mem.PutDevice(ctx, model.Device{StudentID: "s1", DeviceID: "d1", LastActivity: base}); err != nil {
		t.Fatalf("put device: %v", err)
	}
	if err := mem.PutDevice(ctx, model.Device{StudentID: "s2", DeviceID: "d2", LastActivity: base.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("put device: %v", err)
	}

	idle, err := mem.ListDevicesIdleSince(ctx, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("list idle: %v", err)
	}
	if len(idle) != 1 || idle[0].StudentID != "s1" {
		t.Fatalf("idle devices = %+v, want only s1", idle)
	}
}

func TestMemoryRunningTimers(t *testing.T) {
	mem := newMemory()
	ctx := context.Background()

	if err := mem.PutTimer(ctx, model.Timer{StudentID: "s1", Status: model.TimerRunning}); err != nil {
		t.Fatalf("put timer: %v", err)
	}
	if err := mem.PutTimer(ctx, model.Timer{StudentID: "s2", Status: model.TimerStopped}); err != nil {
		t.Fatalf("put timer: %v", err)
	}
	timers, err := mem.ListRunningTimers(ctx)
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if len(timers) != 1 || timers[0].StudentID != "s1" {
		t.Fatalf("running timers = %+v, want only s1", timers)
	}
}
