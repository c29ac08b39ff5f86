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

// CheckinView is the wire shape of a student's latest check-in.
type CheckinView struct {
	DeviceID  string    `json:"device_id"`
	BSSID     string    `json:"bssid"`
	Timestamp time.Time `json:"timestamp"`
}

// TimerView is the wire shape of a presence timer. Durations are reported
// in whole seconds.
type TimerView struct {
	Status    model.TimerStatus `json:"status"`
	StartTime time.Time         `json:"start_time"`
	Duration  int64             `json:"duration_seconds"`
	Remaining int64             `json:"remaining_seconds"`
}

// StudentStatus is the live view of one student: the raw signals plus the
// rendered status a dashboard shows. A manual override wins over the
// derived value; otherwise the student is present while authorized against
// the current oracle.
type StudentStatus struct {
	StudentID  string                  `json:"student_id"`
	Name       string                  `json:"name"`
	Classroom  string                  `json:"classroom"`
	Status     model.AttendanceStatus  `json:"status"`
	Authorized bool                    `json:"authorized"`
	Override   *model.AttendanceStatus `json:"override,omitempty"`
	Checkin    *CheckinView            `json:"checkin,omitempty"`
	Timer      *TimerView              `json:"timer,omitempty"`
}

// ClassroomStatus is the teacher dashboard payload for one classroom.
type ClassroomStatus struct {
	Classroom       string                   `json:"classroom"`
	AuthorizedBSSID string                   `json:"authorized_bssid"`
	Students        map[string]StudentStatus `json:"students"`
}

// StudentStatus reports the live status of a single student.
func (e *Engine) StudentStatus(ctx context.Context, studentID string) (StudentStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StudentStatus{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return StudentStatus{}, err
	}
	settings, err := e.settings(ctx)
	if err != nil {
		return StudentStatus{}, err
	}
	return e.studentStatusLocked(ctx, student, settings.AuthorizedBSSID)
}

// ClassroomStatus reports the live status of every student in a classroom.
func (e *Engine) ClassroomStatus(ctx context.Context, classroom string) (ClassroomStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	students, err := e.store.ListStudents(ctx, store.StudentFilter{Classroom: classroom})
	if err != nil {
		return ClassroomStatus{}, err
	}
	settings, err := e.settings(ctx)
	if err != nil {
		return ClassroomStatus{}, err
	}
	oracle := settings.AuthorizedBSSID
	out := ClassroomStatus{
		Classroom:       classroom,
		AuthorizedBSSID: oracle,
		Students:        make(map[string]StudentStatus, len(students)),
	}
	for _, student := range students {
		status, err := e.studentStatusLocked(ctx, student, oracle)
		if err != nil {
			e.log.Warn("status computation failed",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		out.Students[student.ID] = status
	}
	return out, nil
}

func (e *Engine) studentStatusLocked(ctx context.Context, student model.Student, oracle string) (StudentStatus, error) {
	status := StudentStatus{
		StudentID: student.ID,
		Name:      student.Name,
		Classroom: student.Classroom,
		Status:    model.StatusAbsent,
	}
	if checkin, err := e.store.LatestCheckin(ctx, student.ID); err == nil {
		status.Checkin = &CheckinView{
			DeviceID:  checkin.DeviceID,
			BSSID:     checkin.BSSID,
			Timestamp: checkin.Timestamp,
		}
		status.Authorized = oracle != "" && checkin.BSSID == oracle
	} else if !errors.Is(err, store.ErrNotFound) {
		return StudentStatus{}, err
	}
	if timer, err := e.store.GetTimer(ctx, student.ID); err == nil {
		status.Timer = &TimerView{
			Status:    timer.Status,
			StartTime: timer.StartTime,
			Duration:  int64(timer.Duration.Seconds()),
			Remaining: int64(timer.Remaining.Seconds()),
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return StudentStatus{}, err
	}
	if status.Authorized {
		status.Status = model.StatusPresent
	}
	if override, err := e.store.GetOverride(ctx, student.ID); err == nil {
		forced := override.Status
		status.Override = &forced
		status.Status = forced
	} else if !errors.Is(err, store.ErrNotFound) {
		return StudentStatus{}, err
	}
	return status, nil
}
