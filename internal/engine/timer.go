package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// StartTimer creates or unconditionally resets the student's presence
// timer to a full running countdown.
func (e *Engine) StartTimer(ctx context.Context, studentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startTimerLocked(ctx, studentID)
}

func (e *Engine) startTimerLocked(ctx context.Context, studentID string) error {
	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	duration, err := e.timerDuration(ctx)
	if err != nil {
		return err
	}
	return e.store.PutTimer(ctx, model.Timer{
		StudentID: studentID,
		Status:    model.TimerRunning,
		StartTime: e.clock.Now(),
		Duration:  duration,
		Remaining: duration,
	})
}

// StartTimerForDevice is the student-initiated start: the device must be
// the registered one and the latest check-in must match the classroom's
// configured BSSID.
func (e *Engine) StartTimerForDevice(ctx context.Context, studentID, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	if err := e.requireDeviceLocked(ctx, studentID, deviceID); err != nil {
		return err
	}
	authorizedBSSID, err := e.classroomBSSID(ctx, student.Classroom)
	if err != nil {
		return err
	}
	checkin, err := e.store.LatestCheckin(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no authorized check-in", ErrUnauthorized)
		}
		return err
	}
	if authorizedBSSID == "" || checkin.BSSID != authorizedBSSID {
		return fmt.Errorf("%w: check-in BSSID does not match classroom", ErrUnauthorized)
	}
	now := e.clock.Now()
	if err := e.store.PutDevice(ctx, model.Device{StudentID: studentID, DeviceID: deviceID, LastActivity: now}); err != nil {
		return err
	}
	return e.startTimerLocked(ctx, studentID)
}

// StopTimer stops a timer before it completes. A running timer is
// finalized at the current instant; stopping an already-stopped or absent
// timer is rejected.
func (e *Engine) StopTimer(ctx context.Context, studentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	timer, err := e.store.GetTimer(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no active timer to stop", ErrInvalidInput)
		}
		return err
	}
	if timer.Status == model.TimerStopped {
		return fmt.Errorf("%w: no active timer to stop", ErrInvalidInput)
	}
	if timer.Status == model.TimerRunning {
		if err := e.finalizeTimerLocked(ctx, studentID, timer); err != nil {
			return err
		}
	}
	timer.Status = model.TimerStopped
	timer.Remaining = 0
	return e.store.PutTimer(ctx, timer)
}

// TickTimers advances every running timer by wall-clock elapsed time.
// Expired timers transition to completed and are finalized within the
// same pass, so a concurrent stop can never finalize the same completion
// twice.
func (e *Engine) TickTimers(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	timers, err := e.store.ListRunningTimers(ctx)
	if err != nil {
		e.log.Warn("timer tick: list failed", zap.Error(err))
		return
	}
	for _, timer := range timers {
		elapsed := now.Sub(timer.StartTime)
		remaining := timer.Duration - elapsed
		if remaining <= 0 {
			timer.Status = model.TimerCompleted
			timer.Remaining = 0
			// Finalize before persisting completion so a failed pass
			// leaves the timer running and the next pass retries it.
			// The per-start attendance key keeps a retry idempotent.
			if err := e.finalizeTimerLocked(ctx, timer.StudentID, timer); err != nil {
				e.log.Warn("timer tick: finalize failed", zap.String("student", timer.StudentID), zap.Error(err))
				continue
			}
			if err := e.store.PutTimer(ctx, timer); err != nil {
				e.log.Warn("timer tick: complete failed", zap.String("student", timer.StudentID), zap.Error(err))
			}
			continue
		}
		timer.Remaining = remaining
		if err := e.store.PutTimer(ctx, timer); err != nil {
			e.log.Warn("timer tick: update failed", zap.String("student", timer.StudentID), zap.Error(err))
		}
	}
}
