package engine

import (
	"context"
	"errors"
	"fmt"

	"rollcall/server/internal/store"
)

// Oracle returns the currently authorized BSSID; empty means unset.
func (e *Engine) Oracle(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	settings, err := e.settings(ctx)
	if err != nil {
		return "", err
	}
	return settings.AuthorizedBSSID, nil
}

// SetOracle points the process-wide authorized BSSID at the given value.
// The change has immediate global effect on every subsequent check-in and
// finalization, across all classrooms.
func (e *Engine) SetOracle(ctx context.Context, bssid string) error {
	if bssid == "" {
		return fmt.Errorf("%w: bssid is required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settings(ctx)
	if err != nil {
		return err
	}
	settings.AuthorizedBSSID = bssid
	return e.store.PutSettings(ctx, settings)
}

// UpdateTeacherBSSID rewires a teacher's classroom mapping, adds the
// classroom to the teacher's set when missing, and follows the oracle if
// it was pointing at the classroom's previous BSSID.
func (e *Engine) UpdateTeacherBSSID(ctx context.Context, teacherID, classroom, bssid string) (map[string]string, error) {
	if teacherID == "" || classroom == "" {
		return nil, fmt.Errorf("%w: teacher and classroom are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: teacher %s", ErrNotFound, teacherID)
		}
		return nil, err
	}
	if teacher.BSSIDMapping == nil {
		teacher.BSSIDMapping = map[string]string{}
	}
	previous := teacher.BSSIDMapping[classroom]
	teacher.BSSIDMapping[classroom] = bssid

	known := false
	for _, room := range teacher.Classrooms {
		if room == classroom {
			known = true
			break
		}
	}
	if !known {
		teacher.Classrooms = append(teacher.Classrooms, classroom)
	}
	if err := e.store.PutTeacher(ctx, teacher); err != nil {
		return nil, err
	}

	settings, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.AuthorizedBSSID != "" && settings.AuthorizedBSSID == previous {
		settings.AuthorizedBSSID = bssid
		if err := e.store.PutSettings(ctx, settings); err != nil {
			return nil, err
		}
	}
	return teacher.BSSIDMapping, nil
}
