package engine

import (
	"context"
	"errors"
	"fmt"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// SetOverride forces a student's displayed status. A present override also
// starts the presence timer, skipping the BSSID check; an absent override
// is accepted unconditionally. Overrides affect rendered status only: the
// attendance recorder does not consult them, so persisted history can
// diverge from what a teacher sees. That mismatch is inherited behavior
// and deliberately kept.
func (e *Engine) SetOverride(ctx context.Context, studentID string, status model.AttendanceStatus) error {
	if status != model.StatusPresent && status != model.StatusAbsent {
		return fmt.Errorf("%w: status must be present or absent", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	if err := e.store.PutOverride(ctx, model.ManualOverride{StudentID: studentID, Status: status}); err != nil {
		return err
	}
	if status == model.StatusPresent {
		return e.startTimerLocked(ctx, studentID)
	}
	return nil
}
