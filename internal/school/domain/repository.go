package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindSchool(ctx context.Context, db *gorm.DB, id snowflake.ID) (*School, error)
	FindTerm(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*TermInfo, error)
	FindStudent(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*StudentProfile, error)
	FindGuardian(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*Guardian, error)
	ListStudentsForGuardian(ctx context.Context, db *gorm.DB, schoolID, guardianID snowflake.ID) ([]*StudentProfile, error)
	ListGuardiansForStudent(ctx context.Context, db *gorm.DB, schoolID, studentID snowflake.ID) ([]*Guardian, error)
}
