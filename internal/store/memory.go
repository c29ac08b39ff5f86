package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"rollcall/server/internal/model"
)

// Memory is a map-backed Store used by tests and the memory backend.
type Memory struct {
	mu           sync.RWMutex
	students     map[string]model.Student
	teachers     map[string]model.Teacher
	devices      map[string]model.Device
	checkins     map[checkinKey]model.Checkin
	timers       map[string]model.Timer
	overrides    map[string]model.ManualOverride
	sessions     map[string]model.Session
	timetables   map[timetableKey]model.Timetable
	settings     model.Settings
	specialDates model.SpecialDates
}

type checkinKey struct {
	studentID string
	deviceID  string
}

type timetableKey struct {
	branch   string
	semester int
}

func NewMemory(defaults model.Settings) *Memory {
	return &Memory{
		students:   make(map[string]model.Student),
		teachers:   make(map[string]model.Teacher),
		devices:    make(map[string]model.Device),
		checkins:   make(map[checkinKey]model.Checkin),
		timers:     make(map[string]model.Timer),
		overrides:  make(map[string]model.ManualOverride),
		sessions:   make(map[string]model.Session),
		timetables: make(map[timetableKey]model.Timetable),
		settings:   defaults,
	}
}

func (m *Memory) GetStudent(_ context.Context, id string) (model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	student, ok := m.students[id]
	if !ok {
		return model.Student{}, ErrNotFound
	}
	return student, nil
}

func (m *Memory) PutStudent(_ context.Context, student model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[student.ID] = student
	return nil
}

func (m *Memory) DeleteStudent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

func (m *Memory) ListStudents(_ context.Context, filter StudentFilter) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Student
	for _, student := range m.students {
		if filter.Classroom != "" && student.Classroom != filter.Classroom {
			continue
		}
		if filter.Branch != "" && student.Branch != filter.Branch {
			continue
		}
		if filter.Semester != 0 && student.Semester != filter.Semester {
			continue
		}
		out = append(out, student)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTeacher(_ context.Context, id string) (model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	teacher, ok := m.teachers[id]
	if !ok {
		return model.Teacher{}, ErrNotFound
	}
	return teacher, nil
}

func (m *Memory) GetTeacherByEmail(_ context.Context, email string) (model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, teacher := range m.teachers {
		if teacher.Email == email {
			return teacher, nil
		}
	}
	return model.Teacher{}, ErrNotFound
}

func (m *Memory) PutTeacher(_ context.Context, teacher model.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[teacher.ID] = teacher
	return nil
}

func (m *Memory) TeacherForClassroom(_ context.Context, classroom string) (model.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.teachers))
	for id := range m.teachers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		teacher := m.teachers[id]
		for _, room := range teacher.Classrooms {
			if room == classroom {
				return teacher, nil
			}
		}
	}
	return model.Teacher{}, ErrNotFound
}

func (m *Memory) GetDevice(_ context.Context, studentID string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devices[studentID]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return device, nil
}

func (m *Memory) PutDevice(_ context.Context, device model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.StudentID] = device
	return nil
}

func (m *Memory) DeleteDevice(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, studentID)
	return nil
}

func (m *Memory) ListDevicesIdleSince(_ context.Context, cutoff time.Time) ([]model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Device
	for _, device := range m.devices {
		if device.LastActivity.Before(cutoff) {
			out = append(out, device)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *Memory) LatestCheckin(_ context.Context, studentID string) (model.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest model.Checkin
	found := false
	for key, checkin := range m.checkins {
		if key.studentID != studentID {
			continue
		}
		if !found || checkin.Timestamp.After(latest.Timestamp) {
			latest = checkin
			found = true
		}
	}
	if !found {
		return model.Checkin{}, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) PutCheckin(_ context.Context, checkin model.Checkin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkins[checkinKey{checkin.StudentID, checkin.DeviceID}] = checkin
	return nil
}

func (m *Memory) DeleteCheckinsForStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.checkins {
		if key.studentID == studentID {
			delete(m.checkins, key)
		}
	}
	return nil
}

func (m *Memory) DeleteCheckinsBefore(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, checkin := range m.checkins {
		if checkin.Timestamp.Before(cutoff) {
			delete(m.checkins, key)
		}
	}
	return nil
}

func (m *Memory) ListCheckinsBetween(_ context.Context, start, end time.Time) ([]model.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Checkin
	for _, checkin := range m.checkins {
		if checkin.Timestamp.Before(start) || checkin.Timestamp.After(end) {
			continue
		}
		out = append(out, checkin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) GetTimer(_ context.Context, studentID string) (model.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	timer, ok := m.timers[studentID]
	if !ok {
		return model.Timer{}, ErrNotFound
	}
	return timer, nil
}

func (m *Memory) PutTimer(_ context.Context, timer model.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[timer.StudentID] = timer
	return nil
}

func (m *Memory) DeleteTimer(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, studentID)
	return nil
}

func (m *Memory) ListRunningTimers(_ context.Context) ([]model.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Timer
	for _, timer := range m.timers {
		if timer.Status == model.TimerRunning {
			out = append(out, timer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *Memory) GetOverride(_ context.Context, studentID string) (model.ManualOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	override, ok := m.overrides[studentID]
	if !ok {
		return model.ManualOverride{}, ErrNotFound
	}
	return override, nil
}

func (m *Memory) PutOverride(_ context.Context, override model.ManualOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[override.StudentID] = override
	return nil
}

func (m *Memory) DeleteOverride(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, studentID)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return session, nil
}

func (m *Memory) PutSession(_ context.Context, session model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) ActiveSessionForClassroom(_ context.Context, classroom string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.Classroom == classroom && session.Active() {
			return session, nil
		}
	}
	return model.Session{}, ErrNotFound
}

func (m *Memory) ListSessions(_ context.Context, filter SessionFilter) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, session := range m.sessions {
		if filter.TeacherID != "" && session.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Classroom != "" && session.Classroom != filter.Classroom {
			continue
		}
		if filter.ActiveOnly && !session.Active() {
			continue
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) GetSettings(_ context.Context) (model.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *Memory) PutSettings(_ context.Context, settings model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	return nil
}

func (m *Memory) GetTimetable(_ context.Context, branch string, semester int) (model.Timetable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	timetable, ok := m.timetables[timetableKey{branch, semester}]
	if !ok {
		return model.Timetable{}, ErrNotFound
	}
	return timetable, nil
}

func (m *Memory) PutTimetable(_ context.Context, timetable model.Timetable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timetables[timetableKey{timetable.Branch, timetable.Semester}] = timetable
	return nil
}

func (m *Memory) GetSpecialDates(_ context.Context) (model.SpecialDates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.specialDates, nil
}

func (m *Memory) PutSpecialDates(_ context.Context, dates model.SpecialDates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specialDates = dates
	return nil
}
