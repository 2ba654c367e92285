package service

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	"github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	"github.com/smallbiznis/schoolfee/internal/observability/metrics"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Directory   schooldomain.Directory
	Catalog     catalogdomain.Service
	Preferences prefdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	directory   schooldomain.Directory
	catalog     catalogdomain.Service
	preferences prefdomain.Service
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("feecompute.service"),
		directory:   p.Directory,
		catalog:     p.Catalog,
		preferences: p.Preferences,
		metrics:     p.Metrics,
	}
}

func (s *Service) Compute(ctx context.Context, req domain.ComputeRequest) (domain.Result, error) {
	pref, err := s.preferences.GetOrCreate(ctx, req.StudentID, req.AcademicTermID)
	if err != nil {
		switch {
		case errors.Is(err, prefdomain.ErrInvalidStudent):
			return domain.Result{}, domain.ErrInvalidStudent
		case errors.Is(err, prefdomain.ErrInvalidTerm):
			return domain.Result{}, domain.ErrInvalidTerm
		case errors.Is(err, prefdomain.ErrInvalidSchool):
			return domain.Result{}, domain.ErrInvalidSchool
		}
		return domain.Result{}, err
	}
	return s.ComputeWithPreference(ctx, req, pref)
}

func (s *Service) ComputeWithPreference(ctx context.Context, req domain.ComputeRequest, pref prefdomain.GuardianFeePreference) (domain.Result, error) {
	student, err := s.directory.GetStudent(ctx, req.StudentID)
	if err != nil {
		return domain.Result{}, mapDirectoryErr(err)
	}
	term, err := s.directory.GetTerm(ctx, req.AcademicTermID)
	if err != nil {
		return domain.Result{}, mapDirectoryErr(err)
	}
	pref.Normalize()

	in := domain.Inputs{
		StudentID:      student.ID,
		GradeID:        student.GradeID,
		AcademicYearID: term.AcademicYearID,
		Preference:     pref,
	}

	if in.Tuition, err = s.catalog.ResolveTuition(ctx, student.GradeID, term.AcademicYearID); err != nil {
		return domain.Result{}, err
	}
	if pref.TransportRouteID != nil && pref.TransportType != prefdomain.TransportNone {
		if in.Route, err = s.catalog.GetRoute(ctx, *pref.TransportRouteID); err != nil {
			return domain.Result{}, err
		}
	}
	if pref.IncludeFood {
		if in.Food, err = s.catalog.ResolveUniversal(ctx, term.AcademicYearID, catalogdomain.FeeTypeFood); err != nil {
			return domain.Result{}, err
		}
	}
	if pref.IncludeSports {
		if in.Sports, err = s.catalog.ResolveUniversal(ctx, term.AcademicYearID, catalogdomain.FeeTypeSports); err != nil {
			return domain.Result{}, err
		}
	}
	if req.IncludeExtras {
		if in.Extras, err = s.catalog.FeeAmountsForGrade(ctx, term.AcademicYearID, student.GradeName); err != nil {
			return domain.Result{}, err
		}
	}

	result, err := domain.Calculate(in)
	if err != nil {
		var missing *domain.MissingCatalogEntryError
		if errors.As(err, &missing) {
			s.metrics.RecordCatalogMiss(ctx, string(missing.Kind), true)
			s.log.Warn("required catalog entry missing",
				zap.String("kind", string(missing.Kind)),
				zap.String("student_id", student.ID.String()),
				zap.String("grade", student.GradeName),
				zap.String("academic_year_id", term.AcademicYearID.String()),
			)
		}
		return domain.Result{}, err
	}
	for _, warning := range result.Warnings {
		s.metrics.RecordCatalogMiss(ctx, warning.Fee, false)
		s.log.Info("optional fee selected without a rate",
			zap.String("fee", warning.Fee),
			zap.String("student_id", student.ID.String()),
			zap.String("academic_year_id", term.AcademicYearID.String()),
		)
	}
	return result, nil
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
