package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rollcall/server/internal/model"
)

// Postgres implements Store on top of a pgx pool. Variable-shape columns
// (attendance, classroom mappings, timetable slots) live in JSONB and are
// converted to typed structures here, at the store boundary.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) GetStudent(ctx context.Context, id string) (model.Student, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, password_hash, name, classroom, branch, semester, attendance
		FROM students
		WHERE id = $1
	`, id)
	return scanStudent(row)
}

func scanStudent(row pgx.Row) (model.Student, error) {
	var student model.Student
	var attendance []byte
	err := row.Scan(
		&student.ID,
		&student.PasswordHash,
		&student.Name,
		&student.Classroom,
		&student.Branch,
		&student.Semester,
		&attendance,
	)
	if err != nil {
		return model.Student{}, mapNoRows(err)
	}
	student.Attendance = model.AttendanceMap{}
	if len(attendance) > 0 {
		if err := json.Unmarshal(attendance, &student.Attendance); err != nil {
			return model.Student{}, fmt.Errorf("decode attendance for %s: %w", student.ID, err)
		}
	}
	return student, nil
}

func (p *Postgres) PutStudent(ctx context.Context, student model.Student) error {
	attendance, err := json.Marshal(orEmptyAttendance(student.Attendance))
	if err != nil {
		return fmt.Errorf("encode attendance for %s: %w", student.ID, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO students (id, password_hash, name, classroom, branch, semester, attendance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			classroom = EXCLUDED.classroom,
			branch = EXCLUDED.branch,
			semester = EXCLUDED.semester,
			attendance = EXCLUDED.attendance
	`, student.ID, student.PasswordHash, student.Name, student.Classroom, student.Branch, student.Semester, attendance)
	return err
}

func (p *Postgres) DeleteStudent(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	return err
}

func (p *Postgres) ListStudents(ctx context.Context, filter StudentFilter) ([]model.Student, error) {
	query := `
		SELECT id, password_hash, name, classroom, branch, semester, attendance
		FROM students
		WHERE ($1 = '' OR classroom = $1)
		  AND ($2 = '' OR branch = $2)
		  AND ($3 = 0 OR semester = $3)
		ORDER BY id
	`
	rows, err := p.pool.Query(ctx, query, filter.Classroom, filter.Branch, filter.Semester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, student)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTeacher(ctx context.Context, id string) (model.Teacher, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, password_hash, email, name, classrooms, bssid_mapping, branches, semesters
		FROM teachers
		WHERE id = $1
	`, id)
	return scanTeacher(row)
}

func (p *Postgres) GetTeacherByEmail(ctx context.Context, email string) (model.Teacher, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, password_hash, email, name, classrooms, bssid_mapping, branches, semesters
		FROM teachers
		WHERE email = $1
	`, email)
	return scanTeacher(row)
}

func (p *Postgres) TeacherForClassroom(ctx context.Context, classroom string) (model.Teacher, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, password_hash, email, name, classrooms, bssid_mapping, branches, semesters
		FROM teachers
		WHERE classrooms ? $1
		ORDER BY id
		LIMIT 1
	`, classroom)
	return scanTeacher(row)
}

func scanTeacher(row pgx.Row) (model.Teacher, error) {
	var teacher model.Teacher
	var classrooms, mapping, branches, semesters []byte
	err := row.Scan(
		&teacher.ID,
		&teacher.PasswordHash,
		&teacher.Email,
		&teacher.Name,
		&classrooms,
		&mapping,
		&branches,
		&semesters,
	)
	if err != nil {
		return model.Teacher{}, mapNoRows(err)
	}
	if err := json.Unmarshal(classrooms, &teacher.Classrooms); err != nil {
		return model.Teacher{}, fmt.Errorf("decode classrooms for %s: %w", teacher.ID, err)
	}
	if err := json.Unmarshal(mapping, &teacher.BSSIDMapping); err != nil {
		return model.Teacher{}, fmt.Errorf("decode bssid mapping for %s: %w", teacher.ID, err)
	}
	if err := json.Unmarshal(branches, &teacher.Branches); err != nil {
		return model.Teacher{}, fmt.Errorf("decode branches for %s: %w", teacher.ID, err)
	}
	if err := json.Unmarshal(semesters, &teacher.Semesters); err != nil {
		return model.Teacher{}, fmt.Errorf("decode semesters for %s: %w", teacher.ID, err)
	}
	return teacher, nil
}

func (p *Postgres) PutTeacher(ctx context.Context, teacher model.Teacher) error {
	classrooms, err := json.Marshal(orEmptySlice(teacher.Classrooms))
	if err != nil {
		return err
	}
	mapping, err := json.Marshal(orEmptyMap(teacher.BSSIDMapping))
	if err != nil {
		return err
	}
	branches, err := json.Marshal(orEmptySlice(teacher.Branches))
	if err != nil {
		return err
	}
	semesters, err := json.Marshal(orEmptyInts(teacher.Semesters))
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO teachers (id, password_hash, email, name, classrooms, bssid_mapping, branches, semesters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			classrooms = EXCLUDED.classrooms,
			bssid_mapping = EXCLUDED.bssid_mapping,
			branches = EXCLUDED.branches,
			semesters = EXCLUDED.semesters
	`, teacher.ID, teacher.PasswordHash, teacher.Email, teacher.Name, classrooms, mapping, branches, semesters)
	return err
}

func (p *Postgres) GetDevice(ctx context.Context, studentID string) (model.Device, error) {
	var device model.Device
	row := p.pool.QueryRow(ctx, `
		SELECT student_id, device_id, last_activity
		FROM active_devices
		WHERE student_id = $1
	`, studentID)
	if err := row.Scan(&device.StudentID, &device.DeviceID, &device.LastActivity); err != nil {
		return model.Device{}, mapNoRows(err)
	}
	return device, nil
}

func (p *Postgres) PutDevice(ctx context.Context, device model.Device) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO active_devices (student_id, device_id, last_activity)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			last_activity = EXCLUDED.last_activity
	`, device.StudentID, device.DeviceID, device.LastActivity)
	return err
}

func (p *Postgres) DeleteDevice(ctx context.Context, studentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM active_devices WHERE student_id = $1`, studentID)
	return err
}

func (p *Postgres) ListDevicesIdleSince(ctx context.Context, cutoff time.Time) ([]model.Device, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT student_id, device_id, last_activity
		FROM active_devices
		WHERE last_activity < $1
		ORDER BY student_id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var device model.Device
		if err := rows.Scan(&device.StudentID, &device.DeviceID, &device.LastActivity); err != nil {
			return nil, err
		}
		out = append(out, device)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestCheckin(ctx context.Context, studentID string) (model.Checkin, error) {
	var checkin model.Checkin
	row := p.pool.QueryRow(ctx, `
		SELECT student_id, device_id, bssid, ts
		FROM checkins
		WHERE student_id = $1
		ORDER BY ts DESC
		LIMIT 1
	`, studentID)
	if err := row.Scan(&checkin.StudentID, &checkin.DeviceID, &checkin.BSSID, &checkin.Timestamp); err != nil {
		return model.Checkin{}, mapNoRows(err)
	}
	return checkin, nil
}

func (p *Postgres) PutCheckin(ctx context.Context, checkin model.Checkin) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO checkins (student_id, device_id, bssid, ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, device_id) DO UPDATE SET
			bssid = EXCLUDED.bssid,
			ts = EXCLUDED.ts
	`, checkin.StudentID, checkin.DeviceID, checkin.BSSID, checkin.Timestamp)
	return err
}

func (p *Postgres) DeleteCheckinsForStudent(ctx context.Context, studentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM checkins WHERE student_id = $1`, studentID)
	return err
}

func (p *Postgres) DeleteCheckinsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM checkins WHERE ts < $1`, cutoff)
	return err
}

func (p *Postgres) ListCheckinsBetween(ctx context.Context, start, end time.Time) ([]model.Checkin, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT student_id, device_id, bssid, ts
		FROM checkins
		WHERE ts BETWEEN $1 AND $2
		ORDER BY ts
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Checkin
	for rows.Next() {
		var checkin model.Checkin
		if err := rows.Scan(&checkin.StudentID, &checkin.DeviceID, &checkin.BSSID, &checkin.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, checkin)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTimer(ctx context.Context, studentID string) (model.Timer, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT student_id, status, start_time, duration_seconds, remaining_seconds
		FROM timers
		WHERE student_id = $1
	`, studentID)
	return scanTimer(row)
}

func scanTimer(row pgx.Row) (model.Timer, error) {
	var timer model.Timer
	var durationSec, remainingSec int64
	if err := row.Scan(&timer.StudentID, &timer.Status, &timer.StartTime, &durationSec, &remainingSec); err != nil {
		return model.Timer{}, mapNoRows(err)
	}
	timer.Duration = time.Duration(durationSec) * time.Second
	timer.Remaining = time.Duration(remainingSec) * time.Second
	return timer, nil
}

func (p *Postgres) PutTimer(ctx context.Context, timer model.Timer) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO timers (student_id, status, start_time, duration_seconds, remaining_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			duration_seconds = EXCLUDED.duration_seconds,
			remaining_seconds = EXCLUDED.remaining_seconds
	`, timer.StudentID, timer.Status, timer.StartTime, int64(timer.Duration.Seconds()), int64(timer.Remaining.Seconds()))
	return err
}

func (p *Postgres) DeleteTimer(ctx context.Context, studentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM timers WHERE student_id = $1`, studentID)
	return err
}

func (p *Postgres) ListRunningTimers(ctx context.Context) ([]model.Timer, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT student_id, status, start_time, duration_seconds, remaining_seconds
		FROM timers
		WHERE status = 'running'
		ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Timer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, timer)
	}
	return out, rows.Err()
}

func (p *Postgres) GetOverride(ctx context.Context, studentID string) (model.ManualOverride, error) {
	var override model.ManualOverride
	row := p.pool.QueryRow(ctx, `
		SELECT student_id, status FROM manual_overrides WHERE student_id = $1
	`, studentID)
	if err := row.Scan(&override.StudentID, &override.Status); err != nil {
		return model.ManualOverride{}, mapNoRows(err)
	}
	return override, nil
}

func (p *Postgres) PutOverride(ctx context.Context, override model.ManualOverride) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO manual_overrides (student_id, status)
		VALUES ($1, $2)
		ON CONFLICT (student_id) DO UPDATE SET status = EXCLUDED.status
	`, override.StudentID, override.Status)
	return err
}

func (p *Postgres) DeleteOverride(ctx context.Context, studentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM manual_overrides WHERE student_id = $1`, studentID)
	return err
}

func (p *Postgres) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, teacher_id, classroom, subject, branch, semester, start_time, end_time, ad_hoc
		FROM sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func scanSession(row pgx.Row) (model.Session, error) {
	var session model.Session
	err := row.Scan(
		&session.ID,
		&session.TeacherID,
		&session.Classroom,
		&session.Subject,
		&session.Branch,
		&session.Semester,
		&session.StartTime,
		&session.EndTime,
		&session.AdHoc,
	)
	if err != nil {
		return model.Session{}, mapNoRows(err)
	}
	return session, nil
}

func (p *Postgres) PutSession(ctx context.Context, session model.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, teacher_id, classroom, subject, branch, semester, start_time, end_time, ad_hoc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time
	`, session.ID, session.TeacherID, session.Classroom, session.Subject, session.Branch, session.Semester, session.StartTime, session.EndTime, session.AdHoc)
	return err
}

func (p *Postgres) ActiveSessionForClassroom(ctx context.Context, classroom string) (model.Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, teacher_id, classroom, subject, branch, semester, start_time, end_time, ad_hoc
		FROM sessions
		WHERE classroom = $1 AND end_time IS NULL
	`, classroom)
	return scanSession(row)
}

func (p *Postgres) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, teacher_id, classroom, subject, branch, semester, start_time, end_time, ad_hoc
		FROM sessions
		WHERE ($1 = '' OR teacher_id = $1)
		  AND ($2 = '' OR classroom = $2)
		  AND (NOT $3 OR end_time IS NULL)
		ORDER BY start_time
	`, filter.TeacherID, filter.Classroom, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSettings(ctx context.Context) (model.Settings, error) {
	var settings model.Settings
	var bssid *string
	var checkinSec, timerSec int64
	row := p.pool.QueryRow(ctx, `
		SELECT authorized_bssid, checkin_interval_seconds, timer_duration_seconds
		FROM server_settings
		WHERE id = 1
	`)
	if err := row.Scan(&bssid, &checkinSec, &timerSec); err != nil {
		return model.Settings{}, mapNoRows(err)
	}
	if bssid != nil {
		settings.AuthorizedBSSID = *bssid
	}
	settings.CheckinInterval = time.Duration(checkinSec) * time.Second
	settings.TimerDuration = time.Duration(timerSec) * time.Second
	return settings, nil
}

func (p *Postgres) PutSettings(ctx context.Context, settings model.Settings) error {
	var bssid *string
	if settings.AuthorizedBSSID != "" {
		bssid = &settings.AuthorizedBSSID
	}
	_, err := p.pool.Exec(ctx, `
		UPDATE server_settings
		SET authorized_bssid = $1, checkin_interval_seconds = $2, timer_duration_seconds = $3
		WHERE id = 1
	`, bssid, int64(settings.CheckinInterval.Seconds()), int64(settings.TimerDuration.Seconds()))
	return err
}

func (p *Postgres) GetTimetable(ctx context.Context, branch string, semester int) (model.Timetable, error) {
	timetable := model.Timetable{Branch: branch, Semester: semester}
	var slots []byte
	row := p.pool.QueryRow(ctx, `
		SELECT slots FROM timetables WHERE branch = $1 AND semester = $2
	`, branch, semester)
	if err := row.Scan(&slots); err != nil {
		return model.Timetable{}, mapNoRows(err)
	}
	if err := json.Unmarshal(slots, &timetable.Slots); err != nil {
		return model.Timetable{}, fmt.Errorf("decode timetable %s/%d: %w", branch, semester, err)
	}
	return timetable, nil
}

func (p *Postgres) PutTimetable(ctx context.Context, timetable model.Timetable) error {
	slots, err := json.Marshal(orEmptySlots(timetable.Slots))
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO timetables (branch, semester, slots)
		VALUES ($1, $2, $3)
		ON CONFLICT (branch, semester) DO UPDATE SET slots = EXCLUDED.slots
	`, timetable.Branch, timetable.Semester, slots)
	return err
}

func (p *Postgres) GetSpecialDates(ctx context.Context) (model.SpecialDates, error) {
	var dates model.SpecialDates
	var holidays, schedules []byte
	row := p.pool.QueryRow(ctx, `
		SELECT holidays, special_schedules FROM special_dates WHERE id = 1
	`)
	if err := row.Scan(&holidays, &schedules); err != nil {
		return model.SpecialDates{}, mapNoRows(err)
	}
	if err := json.Unmarshal(holidays, &dates.Holidays); err != nil {
		return model.SpecialDates{}, fmt.Errorf("decode holidays: %w", err)
	}
	if err := json.Unmarshal(schedules, &dates.SpecialSchedules); err != nil {
		return model.SpecialDates{}, fmt.Errorf("decode special schedules: %w", err)
	}
	return dates, nil
}

func (p *Postgres) PutSpecialDates(ctx context.Context, dates model.SpecialDates) error {
	holidays, err := json.Marshal(orEmptySlice(dates.Holidays))
	if err != nil {
		return err
	}
	schedules, err := json.Marshal(orEmptySlots(dates.SpecialSchedules))
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE special_dates SET holidays = $1, special_schedules = $2 WHERE id = 1
	`, holidays, schedules)
	return err
}

// JSON columns are NOT NULL; nil slices and maps marshal to null, so they
// are replaced with their empty forms before encoding.

func orEmptyAttendance(m model.AttendanceMap) model.AttendanceMap {
	if m == nil {
		return model.AttendanceMap{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlots(s []model.TimetableSlot) []model.TimetableSlot {
	if s == nil {
		return []model.TimetableSlot{}
	}
	return s
}
