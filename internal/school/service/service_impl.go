package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Directory {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("school.directory"),
		repo: p.Repo,
	}
}

func (s *Service) GetSchool(ctx context.Context) (domain.School, error) {
	schoolID, err := schoolFromContext(ctx)
	if err != nil {
		return domain.School{}, err
	}
	school, err := s.repo.FindSchool(ctx, s.db, schoolID)
	if err != nil {
		return domain.School{}, err
	}
	if school == nil {
		return domain.School{}, domain.ErrSchoolNotFound
	}
	return *school, nil
}

func (s *Service) GetTerm(ctx context.Context, termID snowflake.ID) (domain.TermInfo, error) {
	schoolID, err := schoolFromContext(ctx)
	if err != nil {
		return domain.TermInfo{}, err
	}
	term, err := s.repo.FindTerm(ctx, s.db, schoolID, termID)
	if err != nil {
		return domain.TermInfo{}, err
	}
	if term == nil {
		return domain.TermInfo{}, domain.ErrTermNotFound
	}
	return *term, nil
}

func (s *Service) GetStudent(ctx context.Context, studentID snowflake.ID) (domain.StudentProfile, error) {
	schoolID, err := schoolFromContext(ctx)
	if err != nil {
		return domain.StudentProfile{}, err
	}
	student, err := s.repo.FindStudent(ctx, s.db, schoolID, studentID)
	if err != nil {
		return domain.StudentProfile{}, err
	}
	if student == nil {
		return domain.StudentProfile{}, domain.ErrStudentNotFound
	}
	return *student, nil
}

func (s *Service) GetGuardian(ctx context.Context, guardianID snowflake.ID) (domain.Guardian, error) {
	schoolID, err := schoolFromContext(ctx)
	if err != nil {
		return domain.Guardian{}, err
	}
	guardian, err := s.repo.FindGuardian(ctx, s.db, schoolID, guardianID)
	if err != nil {
		return domain.Guardian{}, err
	}
	if guardian == nil {
		return domain.Guardian{}, domain.ErrGuardianNotFound
	}
	return *guardian, nil
}

func (s *Service) StudentsForGuardian(ctx context.Context, guardianID snowflake.ID) ([]domain.StudentProfile, error) {
	if _, err := s.GetGuardian(ctx, guardianID); err != nil {
		return nil, err
	}
	schoolID, _ := schoolcontext.SchoolIDFromContext(ctx)
	items, err := s.repo.ListStudentsForGuardian(ctx, s.db, schoolID, guardianID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StudentProfile, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) GuardiansForStudent(ctx context.Context, studentID snowflake.ID) ([]domain.Guardian, error) {
	if _, err := s.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	schoolID, _ := schoolcontext.SchoolIDFromContext(ctx)
	items, err := s.repo.ListGuardiansForStudent(ctx, s.db, schoolID, studentID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Guardian, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func schoolFromContext(ctx context.Context) (snowflake.ID, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidSchool
	}
	return schoolID, nil
}
