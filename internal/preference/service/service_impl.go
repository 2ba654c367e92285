package service

import (
	"context"
	"errors"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/preference/domain"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Directory schooldomain.Directory
	AuditSvc  auditdomain.Service
	Clock     clock.Clock `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	directory schooldomain.Directory
	auditSvc  auditdomain.Service
	clock     clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("preference.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		directory: p.Directory,
		auditSvc:  p.AuditSvc,
		clock:     clk,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, studentID, termID snowflake.ID) (domain.GuardianFeePreference, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	if err := s.checkScope(ctx, studentID, termID); err != nil {
		return domain.GuardianFeePreference{}, err
	}
	return s.getOrCreate(ctx, schoolID, studentID, termID)
}

func (s *Service) getOrCreate(ctx context.Context, schoolID, studentID, termID snowflake.ID) (domain.GuardianFeePreference, error) {
	existing, err := s.repo.FindByStudentTerm(ctx, s.db, schoolID, studentID, termID)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.clock.Now()
	pref := domain.GuardianFeePreference{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		StudentID:      studentID,
		AcademicTermID: termID,
		TuitionType:    domain.TuitionFullDay,
		TransportType:  domain.TransportNone,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &pref); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.GuardianFeePreference{}, err
		}
		// Lost the race to a concurrent first open; use the winner's row.
		existing, err = s.repo.FindByStudentTerm(ctx, s.db, schoolID, studentID, termID)
		if err != nil {
			return domain.GuardianFeePreference{}, err
		}
		if existing == nil {
			return domain.GuardianFeePreference{}, domain.ErrNotFound
		}
		return *existing, nil
	}
	s.log.Debug("created default preference",
		zap.String("preference_id", pref.ID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("academic_term_id", termID.String()),
	)
	return pref, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePreferenceRequest) (domain.GuardianFeePreference, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	if req.TransportType == "" {
		req.TransportType = domain.TransportNone
	}
	if !req.TuitionType.Valid() {
		return domain.GuardianFeePreference{}, domain.ErrInvalidTuitionType
	}
	if !req.TransportType.Valid() {
		return domain.GuardianFeePreference{}, domain.ErrInvalidTransportType
	}

	base, err := s.GetOrCreate(ctx, req.StudentID, req.AcademicTermID)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}

	var result domain.GuardianFeePreference
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Lock(ctx, tx, schoolID, base.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
			return domain.ErrVersionConflict
		}

		next := req.Apply(*current)
		diff := domain.Diff(*current, next)
		if len(diff) == 0 {
			result = *current
			return nil
		}

		now := s.clock.Now()
		actor := actorLabel(ctx)
		next.PreviousValues = datatypes.JSONMap(current.Snapshot())
		next.UpdatedBy = actor
		next.Version = current.Version + 1
		next.UpdatedAt = now

		updated, err := s.repo.UpdateVersioned(ctx, tx, &next)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrVersionConflict
		}

		change := domain.PreferenceChange{
			ID:           s.genID.Generate(),
			SchoolID:     schoolID,
			PreferenceID: next.ID,
			Version:      next.Version,
			ChangedAt:    now,
			ChangedBy:    actor,
			Diff:         datatypes.NewJSONType(diff),
		}
		if err := s.repo.InsertChange(ctx, tx, &change); err != nil {
			return err
		}

		if s.auditSvc != nil {
			fields := lo.Keys(diff)
			slices.Sort(fields)
			if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "preference", ID: next.ID.String()}, "preference.updated", map[string]any{
				"student_id":       next.StudentID.String(),
				"academic_term_id": next.AcademicTermID.String(),
				"version":          next.Version,
				"fields":           fields,
			}); err != nil {
				return err
			}
		}

		result = next
		return nil
	})
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.GuardianFeePreference, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	pref, err := s.repo.FindByID(ctx, s.db, schoolID, id)
	if err != nil {
		return domain.GuardianFeePreference{}, err
	}
	if pref == nil {
		return domain.GuardianFeePreference{}, domain.ErrNotFound
	}
	return *pref, nil
}

func (s *Service) ListForGuardian(ctx context.Context, guardianID, termID snowflake.ID) ([]domain.GuardianFeePreference, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.GetTerm(ctx, termID); err != nil {
		return nil, mapDirectoryErr(err)
	}
	students, err := s.directory.StudentsForGuardian(ctx, guardianID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.GuardianFeePreference, 0, len(students))
	for _, student := range students {
		pref, err := s.getOrCreate(ctx, schoolID, student.ID, termID)
		if err != nil {
			return nil, err
		}
		out = append(out, pref)
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, preferenceID snowflake.ID) ([]domain.PreferenceChange, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, preferenceID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListChanges(ctx, s.db, schoolID, preferenceID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PreferenceChange, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) checkScope(ctx context.Context, studentID, termID snowflake.ID) error {
	if _, err := s.directory.GetStudent(ctx, studentID); err != nil {
		return mapDirectoryErr(err)
	}
	if _, err := s.directory.GetTerm(ctx, termID); err != nil {
		return mapDirectoryErr(err)
	}
	return nil
}

func (s *Service) schoolID(ctx context.Context) (snowflake.ID, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidSchool
	}
	return schoolID, nil
}

func mapDirectoryErr(err error) error {
	switch {
	case errors.Is(err, schooldomain.ErrStudentNotFound):
		return domain.ErrInvalidStudent
	case errors.Is(err, schooldomain.ErrTermNotFound):
		return domain.ErrInvalidTerm
	case errors.Is(err, schooldomain.ErrInvalidSchool):
		return domain.ErrInvalidSchool
	default:
		return err
	}
}

func actorLabel(ctx context.Context) *string {
	label := auditcontext.ActorLabel(ctx)
	if label == "" {
		return nil
	}
	return &label
}
