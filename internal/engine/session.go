package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// StartSession opens a classroom-exclusive session and points the oracle
// at the teacher's configured BSSID for that classroom (when one exists).
func (e *Engine) StartSession(ctx context.Context, teacherID, classroom, subject, branch string, semester int, adHoc bool) (model.Session, error) {
	if teacherID == "" || classroom == "" || subject == "" {
		return model.Session{}, fmt.Errorf("%w: teacher, classroom and subject are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Session{}, fmt.Errorf("%w: teacher %s", ErrNotFound, teacherID)
		}
		return model.Session{}, err
	}
	if _, err := e.store.ActiveSessionForClassroom(ctx, classroom); err == nil {
		return model.Session{}, fmt.Errorf("%w: classroom %s already has an active session", ErrConflict, classroom)
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Session{}, err
	}

	session := model.Session{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Classroom: classroom,
		Subject:   subject,
		Branch:    branch,
		Semester:  semester,
		StartTime: e.clock.Now(),
		AdHoc:     adHoc,
	}
	if err := e.store.PutSession(ctx, session); err != nil {
		return model.Session{}, err
	}

	if bssid := teacher.BSSIDMapping[classroom]; bssid != "" {
		settings, err := e.settings(ctx)
		if err != nil {
			return model.Session{}, err
		}
		settings.AuthorizedBSSID = bssid
		if err := e.store.PutSettings(ctx, settings); err != nil {
			return model.Session{}, err
		}
	}
	return session, nil
}

// EndSession closes the session, finalizes attendance from the window's
// check-in history and clears the oracle.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (model.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return model.Session{}, err
	}
	if !session.Active() {
		return model.Session{}, fmt.Errorf("%w: session already ended", ErrConflict)
	}

	endTime := e.clock.Now()
	session.EndTime = &endTime
	if err := e.store.PutSession(ctx, session); err != nil {
		return model.Session{}, err
	}

	e.finalizeSessionLocked(ctx, session, endTime)

	settings, err := e.settings(ctx)
	if err != nil {
		return model.Session{}, err
	}
	settings.AuthorizedBSSID = ""
	if err := e.store.PutSettings(ctx, settings); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

// Sessions lists sessions matching the filter.
func (e *Engine) Sessions(ctx context.Context, filter store.SessionFilter) ([]model.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListSessions(ctx, filter)
}

// ActiveSession returns the open session for a classroom, if any.
func (e *Engine) ActiveSession(ctx context.Context, classroom string) (model.Session, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session, err := e.store.ActiveSessionForClassroom(ctx, classroom)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Session{}, false, nil
		}
		return model.Session{}, false, err
	}
	return session, true, nil
}
