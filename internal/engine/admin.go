package engine

import (
	"context"
	"errors"
	"fmt"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// RegisterStudent creates a student record. The password hash is produced
// by the caller; the engine never sees plaintext credentials.
func (e *Engine) RegisterStudent(ctx context.Context, student model.Student) error {
	if student.ID == "" || student.PasswordHash == "" {
		return fmt.Errorf("%w: student id and password are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, student.ID); err == nil {
		return fmt.Errorf("%w: student %s already exists", ErrConflict, student.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if student.Attendance == nil {
		student.Attendance = model.AttendanceMap{}
	}
	return e.store.PutStudent(ctx, student)
}

// StudentUpdate carries the mutable student fields; nil means keep.
type StudentUpdate struct {
	Name         *string
	Classroom    *string
	Branch       *string
	Semester     *int
	PasswordHash *string
}

// UpdateStudent applies a partial update to a student record.
func (e *Engine) UpdateStudent(ctx context.Context, studentID string, update StudentUpdate) (model.Student, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Student{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return model.Student{}, err
	}
	if update.Name != nil {
		student.Name = *update.Name
	}
	if update.Classroom != nil {
		student.Classroom = *update.Classroom
	}
	if update.Branch != nil {
		student.Branch = *update.Branch
	}
	if update.Semester != nil {
		student.Semester = *update.Semester
	}
	if update.PasswordHash != nil {
		student.PasswordHash = *update.PasswordHash
	}
	if err := e.store.PutStudent(ctx, student); err != nil {
		return model.Student{}, err
	}
	return student, nil
}

// DeleteStudent removes a student and every dependent row: device binding,
// check-ins, timer and override.
func (e *Engine) DeleteStudent(ctx context.Context, studentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return err
	}
	if err := e.store.DeleteDevice(ctx, studentID); err != nil {
		return err
	}
	if err := e.store.DeleteCheckinsForStudent(ctx, studentID); err != nil {
		return err
	}
	if err := e.store.DeleteTimer(ctx, studentID); err != nil {
		return err
	}
	if err := e.store.DeleteOverride(ctx, studentID); err != nil {
		return err
	}
	return e.store.DeleteStudent(ctx, studentID)
}

// Students lists students matching the filter.
func (e *Engine) Students(ctx context.Context, filter store.StudentFilter) ([]model.Student, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListStudents(ctx, filter)
}

// Student returns a single student record.
func (e *Engine) Student(ctx context.Context, studentID string) (model.Student, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Student{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return model.Student{}, err
	}
	return student, nil
}

// RegisterTeacher creates a teacher record keyed by id with a unique email.
func (e *Engine) RegisterTeacher(ctx context.Context, teacher model.Teacher) error {
	if teacher.ID == "" || teacher.Email == "" || teacher.PasswordHash == "" {
		return fmt.Errorf("%w: teacher id, email and password are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetTeacher(ctx, teacher.ID); err == nil {
		return fmt.Errorf("%w: teacher %s already exists", ErrConflict, teacher.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := e.store.GetTeacherByEmail(ctx, teacher.Email); err == nil {
		return fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if teacher.BSSIDMapping == nil {
		teacher.BSSIDMapping = map[string]string{}
	}
	return e.store.PutTeacher(ctx, teacher)
}

// Teacher returns a single teacher record.
func (e *Engine) Teacher(ctx context.Context, teacherID string) (model.Teacher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Teacher{}, fmt.Errorf("%w: teacher %s", ErrNotFound, teacherID)
		}
		return model.Teacher{}, err
	}
	return teacher, nil
}

// TeacherByEmail returns a single teacher record looked up by email.
func (e *Engine) TeacherByEmail(ctx context.Context, email string) (model.Teacher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacherByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Teacher{}, fmt.Errorf("%w: teacher %s", ErrNotFound, email)
		}
		return model.Teacher{}, err
	}
	return teacher, nil
}

// TeacherUpdate carries the mutable teacher profile fields; nil means keep.
type TeacherUpdate struct {
	Name       *string
	Classrooms []string
	Branches   []string
	Semesters  []int
}

// UpdateTeacherProfile applies a partial profile update.
func (e *Engine) UpdateTeacherProfile(ctx context.Context, teacherID string, update TeacherUpdate) (model.Teacher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Teacher{}, fmt.Errorf("%w: teacher %s", ErrNotFound, teacherID)
		}
		return model.Teacher{}, err
	}
	if update.Name != nil {
		teacher.Name = *update.Name
	}
	if update.Classrooms != nil {
		teacher.Classrooms = update.Classrooms
	}
	if update.Branches != nil {
		teacher.Branches = update.Branches
	}
	if update.Semesters != nil {
		teacher.Semesters = update.Semesters
	}
	if err := e.store.PutTeacher(ctx, teacher); err != nil {
		return model.Teacher{}, err
	}
	return teacher, nil
}

// ChangeTeacherPassword replaces the stored password hash.
func (e *Engine) ChangeTeacherPassword(ctx context.Context, teacherID, passwordHash string) error {
	if passwordHash == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	teacher, err := e.store.GetTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: teacher %s", ErrNotFound, teacherID)
		}
		return err
	}
	teacher.PasswordHash = passwordHash
	return e.store.PutTeacher(ctx, teacher)
}

// Timetable returns the weekly timetable for a branch and semester.
func (e *Engine) Timetable(ctx context.Context, branch string, semester int) (model.Timetable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timetable, err := e.store.GetTimetable(ctx, branch, semester)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Timetable{}, fmt.Errorf("%w: timetable %s/%d", ErrNotFound, branch, semester)
		}
		return model.Timetable{}, err
	}
	return timetable, nil
}

// SetTimetable replaces the weekly timetable for a branch and semester.
func (e *Engine) SetTimetable(ctx context.Context, timetable model.Timetable) error {
	if timetable.Branch == "" || timetable.Semester <= 0 {
		return fmt.Errorf("%w: branch and semester are required", ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PutTimetable(ctx, timetable)
}

// SpecialDates returns the holidays and one-off schedule replacements.
func (e *Engine) SpecialDates(ctx context.Context) (model.SpecialDates, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dates, err := e.store.GetSpecialDates(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.SpecialDates{}, nil
		}
		return model.SpecialDates{}, err
	}
	return dates, nil
}

// SetSpecialDates replaces the holidays and schedule replacements.
func (e *Engine) SetSpecialDates(ctx context.Context, dates model.SpecialDates) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PutSpecialDates(ctx, dates)
}
