package model

import "time"

// TimerStatus is the lifecycle state of a presence timer.
type TimerStatus string

const (
	TimerStopped   TimerStatus = "stopped"
	TimerRunning   TimerStatus = "running"
	TimerCompleted TimerStatus = "completed"
)

// AttendanceStatus is the recorded outcome for a session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
)

// AttendanceEntry is one append-only attendance record, keyed in the
// student's attendance map by date and session key.
type AttendanceEntry struct {
	Status    AttendanceStatus `json:"status"`
	Subject   string           `json:"subject"`
	Classroom string           `json:"classroom"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Branch    string           `json:"branch"`
	Semester  int              `json:"semester"`
}

// AttendanceMap maps ISO date -> session key -> entry.
type AttendanceMap map[string]map[string]AttendanceEntry

type Student struct {
	ID           string
	PasswordHash string
	Name         string
	Classroom    string
	Branch       string
	Semester     int
	Attendance   AttendanceMap
}

type Teacher struct {
	ID           string
	PasswordHash string
	Email        string
	Name         string
	Classrooms   []string
	// BSSIDMapping maps classroom -> configured access point BSSID.
	BSSIDMapping map[string]string
	Branches     []string
	Semesters    []int
}

// Device is the single active device registered for a student.
type Device struct {
	StudentID    string
	DeviceID     string
	LastActivity time.Time
}

// Checkin is the last proximity report from a student's device.
type Checkin struct {
	StudentID string
	DeviceID  string
	BSSID     string
	Timestamp time.Time
}

// Timer is a per-student presence countdown.
type Timer struct {
	StudentID string
	Status    TimerStatus
	StartTime time.Time
	Duration  time.Duration
	Remaining time.Duration
}

// ManualOverride forces a displayed status until cleared or superseded.
type ManualOverride struct {
	StudentID string
	Status    AttendanceStatus
}

type Session struct {
	ID        string
	TeacherID string
	Classroom string
	Subject   string
	Branch    string
	Semester  int
	StartTime time.Time
	EndTime   *time.Time
	AdHoc     bool
}

// Active reports whether the session has not been ended yet.
func (s Session) Active() bool { return s.EndTime == nil }

// Settings is the single server-wide settings row. AuthorizedBSSID is the
// authorization oracle: empty string means unset.
type Settings struct {
	AuthorizedBSSID string
	CheckinInterval time.Duration
	TimerDuration   time.Duration
}

// TimetableSlot is one weekly timetable row: day, start, end, subject, room.
type TimetableSlot struct {
	Day       string `json:"day"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Subject   string `json:"subject"`
	Classroom string `json:"classroom"`
}

type Timetable struct {
	Branch   string
	Semester int
	Slots    []TimetableSlot
}

// SpecialDates carries holidays and one-off schedule replacements.
type SpecialDates struct {
	Holidays         []string        `json:"holidays"`
	SpecialSchedules []TimetableSlot `json:"special_schedules"`
}
