package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// CheckinResult is returned to the check-in caller.
type CheckinResult struct {
	Status          model.AttendanceStatus
	AuthorizedBSSID string
}

// Login binds a student to a single active device. A second device is
// rejected until the first expires or is cleaned up.
func (e *Engine) Login(ctx context.Context, studentID, deviceID string) error {
	if studentID == "" || deviceID == "" {
		return fmt.Errorf("%w: student and device ids are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	device, err := e.store.GetDevice(ctx, studentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil && device.DeviceID != deviceID {
		return fmt.Errorf("%w: account already active on another device", ErrUnauthorized)
	}
	return e.store.PutDevice(ctx, model.Device{
		StudentID:    studentID,
		DeviceID:     deviceID,
		LastActivity: e.clock.Now(),
	})
}

// Checkin records a proximity report and, when the reported BSSID matches
// the classroom's configured one, starts the presence timer.
func (e *Engine) Checkin(ctx context.Context, studentID, deviceID, bssid string) (CheckinResult, error) {
	if studentID == "" || deviceID == "" {
		return CheckinResult{}, fmt.Errorf("%w: student and device ids are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CheckinResult{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return CheckinResult{}, err
	}
	if err := e.requireDeviceLocked(ctx, studentID, deviceID); err != nil {
		return CheckinResult{}, err
	}
	now := e.clock.Now()
	if err := e.store.PutDevice(ctx, model.Device{StudentID: studentID, DeviceID: deviceID, LastActivity: now}); err != nil {
		return CheckinResult{}, err
	}
	if err := e.store.PutCheckin(ctx, model.Checkin{
		StudentID: studentID,
		DeviceID:  deviceID,
		BSSID:     bssid,
		Timestamp: now,
	}); err != nil {
		return CheckinResult{}, err
	}

	authorizedBSSID, err := e.classroomBSSID(ctx, student.Classroom)
	if err != nil {
		return CheckinResult{}, err
	}
	result := CheckinResult{Status: model.StatusAbsent, AuthorizedBSSID: authorizedBSSID}
	if bssid != "" && bssid == authorizedBSSID {
		if err := e.startTimerLocked(ctx, studentID); err != nil {
			return CheckinResult{}, err
		}
		result.Status = model.StatusPresent
	}
	return result, nil
}

// TouchDevice refreshes device activity for an authenticated call.
func (e *Engine) TouchDevice(ctx context.Context, studentID, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	if err := e.requireDeviceLocked(ctx, studentID, deviceID); err != nil {
		return err
	}
	return e.store.PutDevice(ctx, model.Device{StudentID: studentID, DeviceID: deviceID, LastActivity: e.clock.Now()})
}

// CleanupStudent drops the device binding (when it matches), check-ins and
// timer for a student. Explicit client-driven variant of the idle sweep.
func (e *Engine) CleanupStudent(ctx context.Context, studentID, deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	device, err := e.store.GetDevice(ctx, studentID)
	if err == nil && device.DeviceID == deviceID {
		if err := e.store.DeleteDevice(ctx, studentID); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := e.store.DeleteCheckinsForStudent(ctx, studentID); err != nil {
		return err
	}
	return e.store.DeleteTimer(ctx, studentID)
}

// SweepIdleDevices evicts devices idle past the configured limit together
// with their student's check-ins and timer. Row failures are logged and
// skipped; the sweep never halts the engine.
func (e *Engine) SweepIdleDevices(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-e.cfg.DeviceIdleLimit)
	devices, err := e.store.ListDevicesIdleSince(ctx, cutoff)
	if err != nil {
		e.log.Warn("device sweep: list failed", zap.Error(err))
		return
	}
	for _, device := range devices {
		if err := e.store.DeleteDevice(ctx, device.StudentID); err != nil {
			e.log.Warn("device sweep: delete device failed", zap.String("student", device.StudentID), zap.Error(err))
			continue
		}
		if err := e.store.DeleteCheckinsForStudent(ctx, device.StudentID); err != nil {
			e.log.Warn("device sweep: delete checkins failed", zap.String("student", device.StudentID), zap.Error(err))
		}
		if err := e.store.DeleteTimer(ctx, device.StudentID); err != nil {
			e.log.Warn("device sweep: delete timer failed", zap.String("student", device.StudentID), zap.Error(err))
		}
	}
}

// SweepCheckins deletes check-ins older than the retention window,
// independent of device liveness.
func (e *Engine) SweepCheckins(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-e.cfg.CheckinRetention)
	if err := e.store.DeleteCheckinsBefore(ctx, cutoff); err != nil {
		e.log.Warn("checkin sweep failed", zap.Error(err))
	}
}

func (e *Engine) requireDeviceLocked(ctx context.Context, studentID, deviceID string) error {
	device, err := e.store.GetDevice(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown device", ErrUnauthorized)
		}
		return err
	}
	if device.DeviceID != deviceID {
		return fmt.Errorf("%w: device mismatch", ErrUnauthorized)
	}
	return nil
}

// classroomBSSID resolves the configured access point for a classroom via
// any teacher whose classroom set contains it. Empty when unconfigured.
func (e *Engine) classroomBSSID(ctx context.Context, classroom string) (string, error) {
	teacher, err := e.store.TeacherForClassroom(ctx, classroom)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return teacher.BSSIDMapping[classroom], nil
}

// ClassroomBSSID is the read-only exported variant used by the transport
// layer for login responses and code-based check-ins.
func (e *Engine) ClassroomBSSID(ctx context.Context, classroom string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classroomBSSID(ctx, classroom)
}
