package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

const timerSubject = "Timer Session"

// finalizeTimerLocked appends one attendance entry for a timer that just
// completed or was stopped. Presence is decided by the latest check-in
// against the oracle value at this instant. Callers hold the guard and
// perform the timer state transition in the same critical section, which
// is what makes finalization exactly-once.
func (e *Engine) finalizeTimerLocked(ctx context.Context, studentID string, timer model.Timer) error {
	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	authorized := false
	checkin, err := e.store.LatestCheckin(ctx, studentID)
	if err == nil {
		settings, err := e.settings(ctx)
		if err != nil {
			return err
		}
		oracle := settings.AuthorizedBSSID
		authorized = oracle != "" && checkin.BSSID == oracle
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	entry := model.AttendanceEntry{
		Status:    model.StatusAbsent,
		Subject:   timerSubject,
		Classroom: student.Classroom,
		StartTime: timer.StartTime,
		EndTime:   timer.StartTime.Add(timer.Duration),
		Branch:    student.Branch,
		Semester:  student.Semester,
	}
	if authorized {
		entry.Status = model.StatusPresent
	}
	key := fmt.Sprintf("timer_%d", timer.StartTime.Unix())
	appendAttendance(&student, timer.StartTime, key, entry)
	return e.store.PutStudent(ctx, student)
}

// finalizeSessionLocked converts the session window's check-in history
// into attendance entries, one per student of the classroom that checked
// in during the window. The oracle value consulted is the one current at
// call time, not the one at each check-in.
func (e *Engine) finalizeSessionLocked(ctx context.Context, session model.Session, endTime time.Time) {
	checkins, err := e.store.ListCheckinsBetween(ctx, session.StartTime, endTime)
	if err != nil {
		e.log.Warn("session finalize: list checkins failed", zap.String("session", session.ID), zap.Error(err))
		return
	}
	settings, err := e.settings(ctx)
	if err != nil {
		e.log.Warn("session finalize: load settings failed", zap.String("session", session.ID), zap.Error(err))
		return
	}
	oracle := settings.AuthorizedBSSID
	key := fmt.Sprintf("%s_%s", session.Subject, session.ID)

	// Latest check-in per student wins; earlier ones only matter for
	// window membership.
	latest := make(map[string]model.Checkin)
	for _, checkin := range checkins {
		current, ok := latest[checkin.StudentID]
		if !ok || checkin.Timestamp.After(current.Timestamp) {
			latest[checkin.StudentID] = checkin
		}
	}

	for studentID, checkin := range latest {
		student, err := e.store.GetStudent(ctx, studentID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				e.log.Warn("session finalize: load student failed", zap.String("student", studentID), zap.Error(err))
			}
			continue
		}
		if student.Classroom != session.Classroom {
			continue
		}
		entry := model.AttendanceEntry{
			Status:    model.StatusAbsent,
			Subject:   session.Subject,
			Classroom: session.Classroom,
			StartTime: session.StartTime,
			EndTime:   endTime,
			Branch:    session.Branch,
			Semester:  session.Semester,
		}
		if oracle != "" && checkin.BSSID == oracle {
			entry.Status = model.StatusPresent
		}
		appendAttendance(&student, session.StartTime, key, entry)
		if err := e.store.PutStudent(ctx, student); err != nil {
			e.log.Warn("session finalize: save student failed", zap.String("student", studentID), zap.Error(err))
		}
	}
}

func appendAttendance(student *model.Student, day time.Time, key string, entry model.AttendanceEntry) {
	if student.Attendance == nil {
		student.Attendance = model.AttendanceMap{}
	}
	date := day.Format("2006-01-02")
	if student.Attendance[date] == nil {
		student.Attendance[date] = map[string]model.AttendanceEntry{}
	}
	student.Attendance[date][key] = entry
}
