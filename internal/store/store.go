package store

import (
	"context"
	"errors"
	"time"

	"rollcall/server/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// StudentFilter narrows ListStudents; zero values match everything.
type StudentFilter struct {
	Classroom string
	Branch    string
	Semester  int
}

// SessionFilter narrows ListSessions; zero values match everything.
type SessionFilter struct {
	TeacherID  string
	Classroom  string
	ActiveOnly bool
}

// Store is the keyed record store the attendance engine runs against.
// Implementations must be safe for concurrent use; the engine additionally
// serializes all mutating traffic behind its own guard.
type Store interface {
	GetStudent(ctx context.Context, id string) (model.Student, error)
	PutStudent(ctx context.Context, student model.Student) error
	DeleteStudent(ctx context.Context, id string) error
	ListStudents(ctx context.Context, filter StudentFilter) ([]model.Student, error)

	GetTeacher(ctx context.Context, id string) (model.Teacher, error)
	GetTeacherByEmail(ctx context.Context, email string) (model.Teacher, error)
	PutTeacher(ctx context.Context, teacher model.Teacher) error
	// TeacherForClassroom returns any teacher whose classroom set contains
	// the classroom.
	TeacherForClassroom(ctx context.Context, classroom string) (model.Teacher, error)

	GetDevice(ctx context.Context, studentID string) (model.Device, error)
	PutDevice(ctx context.Context, device model.Device) error
	DeleteDevice(ctx context.Context, studentID string) error
	ListDevicesIdleSince(ctx context.Context, cutoff time.Time) ([]model.Device, error)

	// LatestCheckin returns the most recent checkin for the student across
	// its devices.
	LatestCheckin(ctx context.Context, studentID string) (model.Checkin, error)
	PutCheckin(ctx context.Context, checkin model.Checkin) error
	DeleteCheckinsForStudent(ctx context.Context, studentID string) error
	DeleteCheckinsBefore(ctx context.Context, cutoff time.Time) error
	ListCheckinsBetween(ctx context.Context, start, end time.Time) ([]model.Checkin, error)

	GetTimer(ctx context.Context, studentID string) (model.Timer, error)
	PutTimer(ctx context.Context, timer model.Timer) error
	DeleteTimer(ctx context.Context, studentID string) error
	ListRunningTimers(ctx context.Context) ([]model.Timer, error)

	GetOverride(ctx context.Context, studentID string) (model.ManualOverride, error)
	PutOverride(ctx context.Context, override model.ManualOverride) error
	DeleteOverride(ctx context.Context, studentID string) error

	GetSession(ctx context.Context, id string) (model.Session, error)
	PutSession(ctx context.Context, session model.Session) error
	ActiveSessionForClassroom(ctx context.Context, classroom string) (model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	GetSettings(ctx context.Context) (model.Settings, error)
	PutSettings(ctx context.Context, settings model.Settings) error

	GetTimetable(ctx context.Context, branch string, semester int) (model.Timetable, error)
	PutTimetable(ctx context.Context, timetable model.Timetable) error

	GetSpecialDates(ctx context.Context) (model.SpecialDates, error)
	PutSpecialDates(ctx context.Context, dates model.SpecialDates) error
}
