package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/school/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindSchool(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.School, error) {
	var school domain.School
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, code, is_active, created_at, updated_at
		 FROM schools WHERE id = ?`,
		id,
	).Scan(&school).Error
	if err != nil {
		return nil, err
	}
	if school.ID == 0 {
		return nil, nil
	}
	return &school, nil
}

func (r *repo) FindTerm(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.TermInfo, error) {
	var term domain.TermInfo
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.school_id, t.academic_year_id, t.name, t.starts_on, t.ends_on,
		        t.created_at, t.updated_at, y.name AS academic_year_name
		 FROM academic_terms t
		 JOIN academic_years y ON y.id = t.academic_year_id
		 WHERE t.school_id = ? AND t.id = ?`,
		schoolID,
		id,
	).Scan(&term).Error
	if err != nil {
		return nil, err
	}
	if term.ID == 0 {
		return nil, nil
	}
	return &term, nil
}

const studentColumns = `s.id, s.school_id, s.grade_id, s.admission_number, s.first_name, s.last_name,
		        s.is_active, s.created_at, s.updated_at, g.name AS grade_name`

func (r *repo) FindStudent(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.StudentProfile, error) {
	var student domain.StudentProfile
	err := db.WithContext(ctx).Raw(
		`SELECT `+studentColumns+`
		 FROM students s
		 LEFT JOIN grades g ON g.id = s.grade_id
		 WHERE s.school_id = ? AND s.id = ?`,
		schoolID,
		id,
	).Scan(&student).Error
	if err != nil {
		return nil, err
	}
	if student.ID == 0 {
		return nil, nil
	}
	return &student, nil
}

func (r *repo) FindGuardian(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.Guardian, error) {
	var guardian domain.Guardian
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, name, email, phone, created_at, updated_at
		 FROM guardians WHERE school_id = ? AND id = ?`,
		schoolID,
		id,
	).Scan(&guardian).Error
	if err != nil {
		return nil, err
	}
	if guardian.ID == 0 {
		return nil, nil
	}
	return &guardian, nil
}

func (r *repo) ListStudentsForGuardian(ctx context.Context, db *gorm.DB, schoolID, guardianID snowflake.ID) ([]*domain.StudentProfile, error) {
	var students []*domain.StudentProfile
	err := db.WithContext(ctx).Raw(
		`SELECT `+studentColumns+`
		 FROM guardian_students gs
		 JOIN students s ON s.id = gs.student_id
		 LEFT JOIN grades g ON g.id = s.grade_id
		 WHERE s.school_id = ? AND gs.guardian_id = ? AND s.is_active = ?
		 ORDER BY s.first_name, s.last_name, s.id`,
		schoolID,
		guardianID,
		true,
	).Scan(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (r *repo) ListGuardiansForStudent(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID) ([]*domain.Guardian, error) {
	var guardians []*domain.Guardian
	err := db.WithContext(ctx).Raw(
		`SELECT gd.id, gd.school_id, gd.name, gd.email, gd.phone, gd.created_at, gd.updated_at
		 FROM guardian_students gs
		 JOIN guardians gd ON gd.id = gs.guardian_id
		 WHERE gd.school_id = ? AND gs.student_id = ?
		 ORDER BY gd.name, gd.id`,
		schoolID,
		studentID,
	).Scan(&guardians).Error
	if err != nil {
		return nil, err
	}
	return guardians, nil
}
