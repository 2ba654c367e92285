package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/cache"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	"github.com/smallbiznis/schoolfee/internal/grade"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"github.com/smallbiznis/schoolfee/pkg/db/option"
	"github.com/smallbiznis/schoolfee/pkg/money"
	"github.com/smallbiznis/schoolfee/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lookupTTL = time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	AuditSvc auditdomain.Service
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	auditSvc auditdomain.Service
	clock    clock.Clock

	tuitionRepo   repository.Repository[domain.TuitionFee]
	routeRepo     repository.Repository[domain.TransportRoute]
	universalRepo repository.Repository[domain.UniversalFee]
	feeAmountRepo repository.Repository[domain.FeeAmount]

	tuitionCache   cache.Cache[string, *domain.TuitionFee]
	routeCache     cache.Cache[string, *domain.TransportRoute]
	universalCache cache.Cache[string, *domain.UniversalFee]
	feeAmountCache cache.Cache[string, []domain.FeeAmount]
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("feecatalog.service"),
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
		clock:    clk,

		tuitionRepo:   repository.ProvideStore[domain.TuitionFee](p.DB),
		routeRepo:     repository.ProvideStore[domain.TransportRoute](p.DB),
		universalRepo: repository.ProvideStore[domain.UniversalFee](p.DB),
		feeAmountRepo: repository.ProvideStore[domain.FeeAmount](p.DB),

		tuitionCache:   cache.NewTTLCache[string, *domain.TuitionFee](),
		routeCache:     cache.NewTTLCache[string, *domain.TransportRoute](),
		universalCache: cache.NewTTLCache[string, *domain.UniversalFee](),
		feeAmountCache: cache.NewTTLCache[string, []domain.FeeAmount](),
	}
}

func (s *Service) CreateTuitionFee(ctx context.Context, req domain.CreateTuitionFeeRequest) (domain.TuitionFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.TuitionFee{}, err
	}
	if req.GradeID == 0 {
		return domain.TuitionFee{}, domain.ErrInvalidGrade
	}
	if req.AcademicYearID == 0 {
		return domain.TuitionFee{}, domain.ErrInvalidAcademicYear
	}
	if err := validateAmounts(req.AmountFullDay, req.AmountHalfDay); err != nil {
		return domain.TuitionFee{}, err
	}

	now := s.clock.Now()
	fee := domain.TuitionFee{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		GradeID:        req.GradeID,
		AcademicYearID: req.AcademicYearID,
		AmountFullDay:  money.Round(req.AmountFullDay),
		AmountHalfDay:  money.Round(req.AmountHalfDay),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tuitionRepo.WithTrx(tx).Create(ctx, &fee); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.created", domain.KindTuition, fee.ID, map[string]any{
			"grade_id":         fee.GradeID.String(),
			"academic_year_id": fee.AcademicYearID.String(),
			"amount_full_day":  money.Format(fee.AmountFullDay),
			"amount_half_day":  money.Format(fee.AmountHalfDay),
		})
	})
	if err != nil {
		return domain.TuitionFee{}, err
	}
	s.invalidate(schoolID)
	return fee, nil
}

func (s *Service) CreateTransportRoute(ctx context.Context, req domain.CreateTransportRouteRequest) (domain.TransportRoute, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.TransportRoute{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.TransportRoute{}, domain.ErrInvalidName
	}
	if req.AcademicYearID == 0 {
		return domain.TransportRoute{}, domain.ErrInvalidAcademicYear
	}
	if err := validateAmounts(req.AmountOneWay, req.AmountTwoWay); err != nil {
		return domain.TransportRoute{}, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	route := domain.TransportRoute{
		ID:             id,
		SchoolID:       schoolID,
		RouteKey:       id,
		AcademicYearID: req.AcademicYearID,
		Name:           name,
		AmountOneWay:   money.Round(req.AmountOneWay),
		AmountTwoWay:   money.Round(req.AmountTwoWay),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.routeRepo.WithTrx(tx).Create(ctx, &route); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.created", domain.KindTransport, route.ID, map[string]any{
			"route_key":      route.RouteKey.String(),
			"name":           route.Name,
			"amount_one_way": money.Format(route.AmountOneWay),
			"amount_two_way": money.Format(route.AmountTwoWay),
		})
	})
	if err != nil {
		return domain.TransportRoute{}, err
	}
	s.invalidate(schoolID)
	return route, nil
}

func (s *Service) CreateUniversalFee(ctx context.Context, req domain.CreateUniversalFeeRequest) (domain.UniversalFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.UniversalFee{}, err
	}
	if !req.FeeType.Valid() {
		return domain.UniversalFee{}, domain.ErrInvalidFeeType
	}
	if req.AcademicYearID == 0 {
		return domain.UniversalFee{}, domain.ErrInvalidAcademicYear
	}
	if err := validateAmounts(req.Amount); err != nil {
		return domain.UniversalFee{}, err
	}

	now := s.clock.Now()
	fee := domain.UniversalFee{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		AcademicYearID: req.AcademicYearID,
		FeeType:        req.FeeType,
		Amount:         money.Round(req.Amount),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.universalRepo.WithTrx(tx).Create(ctx, &fee); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.created", domain.KindUniversal, fee.ID, map[string]any{
			"fee_type": string(fee.FeeType),
			"amount":   money.Format(fee.Amount),
		})
	})
	if err != nil {
		return domain.UniversalFee{}, err
	}
	s.invalidate(schoolID)
	return fee, nil
}

func (s *Service) CreateFeeAmount(ctx context.Context, req domain.CreateFeeAmountRequest) (domain.FeeAmount, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.FeeAmount{}, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return domain.FeeAmount{}, domain.ErrInvalidName
	}
	if domain.ReservedLabel(label) {
		return domain.FeeAmount{}, domain.ErrReservedLabel
	}
	rng, err := grade.ParseRange(req.GradeRange)
	if err != nil {
		return domain.FeeAmount{}, domain.ErrInvalidGradeRange
	}
	if req.AcademicYearID == 0 {
		return domain.FeeAmount{}, domain.ErrInvalidAcademicYear
	}
	if err := validateAmounts(req.Amount); err != nil {
		return domain.FeeAmount{}, err
	}

	now := s.clock.Now()
	fee := domain.FeeAmount{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		AcademicYearID: req.AcademicYearID,
		Label:          label,
		GradeRange:     rng.String(),
		Amount:         money.Round(req.Amount),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkLabelFree(ctx, tx, fee); err != nil {
			return err
		}
		if err := s.feeAmountRepo.WithTrx(tx).Create(ctx, &fee); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.created", domain.KindFeeAmount, fee.ID, map[string]any{
			"label":       fee.Label,
			"grade_range": fee.GradeRange,
			"amount":      money.Format(fee.Amount),
		})
	})
	if err != nil {
		return domain.FeeAmount{}, err
	}
	s.invalidate(schoolID)
	return fee, nil
}

func (s *Service) ReviseTuitionFee(ctx context.Context, req domain.ReviseRequest) (domain.TuitionFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.TuitionFee{}, err
	}

	var next domain.TuitionFee
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.tuitionRepo.WithTrx(tx)
		current, err := repo.FindOne(ctx, &domain.TuitionFee{ID: req.ID, SchoolID: schoolID}, lockRow())
		if err != nil {
			return err
		}
		if err := checkRevisable(current != nil, current != nil && current.IsActive); err != nil {
			return err
		}

		next = *current
		if req.AmountFullDay != nil {
			next.AmountFullDay = money.Round(*req.AmountFullDay)
		}
		if req.AmountHalfDay != nil {
			next.AmountHalfDay = money.Round(*req.AmountHalfDay)
		}
		if err := validateAmounts(next.AmountFullDay, next.AmountHalfDay); err != nil {
			return err
		}
		now := s.clock.Now()
		next.ID = s.genID.Generate()
		next.CreatedAt, next.UpdatedAt = now, now

		if err := repo.Update(ctx, current.ID.String(), retired(now)); err != nil {
			return err
		}
		if err := repo.Create(ctx, &next); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.revised", domain.KindTuition, next.ID, map[string]any{
			"supersedes":      current.ID.String(),
			"amount_full_day": changeOf(current.AmountFullDay, next.AmountFullDay),
			"amount_half_day": changeOf(current.AmountHalfDay, next.AmountHalfDay),
		})
	})
	if err != nil {
		return domain.TuitionFee{}, err
	}
	s.invalidate(schoolID)
	return next, nil
}

func (s *Service) ReviseTransportRoute(ctx context.Context, req domain.ReviseRequest) (domain.TransportRoute, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.TransportRoute{}, err
	}

	var next domain.TransportRoute
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.routeRepo.WithTrx(tx)
		current, err := repo.FindOne(ctx, &domain.TransportRoute{ID: req.ID, SchoolID: schoolID}, lockRow())
		if err != nil {
			return err
		}
		if err := checkRevisable(current != nil, current != nil && current.IsActive); err != nil {
			return err
		}

		next = *current
		if req.Name != nil {
			next.Name = strings.TrimSpace(*req.Name)
			if next.Name == "" {
				return domain.ErrInvalidName
			}
		}
		if req.AmountOneWay != nil {
			next.AmountOneWay = money.Round(*req.AmountOneWay)
		}
		if req.AmountTwoWay != nil {
			next.AmountTwoWay = money.Round(*req.AmountTwoWay)
		}
		if err := validateAmounts(next.AmountOneWay, next.AmountTwoWay); err != nil {
			return err
		}
		now := s.clock.Now()
		next.ID = s.genID.Generate()
		next.RouteKey = current.Key()
		next.CreatedAt, next.UpdatedAt = now, now

		if err := repo.Update(ctx, current.ID.String(), retired(now)); err != nil {
			return err
		}
		if err := repo.Create(ctx, &next); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.revised", domain.KindTransport, next.ID, map[string]any{
			"supersedes":     current.ID.String(),
			"route_key":      next.RouteKey.String(),
			"amount_one_way": changeOf(current.AmountOneWay, next.AmountOneWay),
			"amount_two_way": changeOf(current.AmountTwoWay, next.AmountTwoWay),
		})
	})
	if err != nil {
		return domain.TransportRoute{}, err
	}
	s.invalidate(schoolID)
	return next, nil
}

func (s *Service) ReviseUniversalFee(ctx context.Context, req domain.ReviseRequest) (domain.UniversalFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.UniversalFee{}, err
	}

	var next domain.UniversalFee
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.universalRepo.WithTrx(tx)
		current, err := repo.FindOne(ctx, &domain.UniversalFee{ID: req.ID, SchoolID: schoolID}, lockRow())
		if err != nil {
			return err
		}
		if err := checkRevisable(current != nil, current != nil && current.IsActive); err != nil {
			return err
		}

		next = *current
		if req.Amount != nil {
			next.Amount = money.Round(*req.Amount)
		}
		if err := validateAmounts(next.Amount); err != nil {
			return err
		}
		now := s.clock.Now()
		next.ID = s.genID.Generate()
		next.CreatedAt, next.UpdatedAt = now, now

		if err := repo.Update(ctx, current.ID.String(), retired(now)); err != nil {
			return err
		}
		if err := repo.Create(ctx, &next); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.revised", domain.KindUniversal, next.ID, map[string]any{
			"supersedes": current.ID.String(),
			"fee_type":   string(next.FeeType),
			"amount":     changeOf(current.Amount, next.Amount),
		})
	})
	if err != nil {
		return domain.UniversalFee{}, err
	}
	s.invalidate(schoolID)
	return next, nil
}

func (s *Service) ReviseFeeAmount(ctx context.Context, req domain.ReviseRequest) (domain.FeeAmount, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return domain.FeeAmount{}, err
	}

	var next domain.FeeAmount
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.feeAmountRepo.WithTrx(tx)
		current, err := repo.FindOne(ctx, &domain.FeeAmount{ID: req.ID, SchoolID: schoolID}, lockRow())
		if err != nil {
			return err
		}
		if err := checkRevisable(current != nil, current != nil && current.IsActive); err != nil {
			return err
		}

		next = *current
		if req.Label != nil {
			next.Label = strings.TrimSpace(*req.Label)
			if next.Label == "" {
				return domain.ErrInvalidName
			}
			if domain.ReservedLabel(next.Label) {
				return domain.ErrReservedLabel
			}
			if err := s.checkLabelFree(ctx, tx, next); err != nil {
				return err
			}
		}
		if req.Amount != nil {
			next.Amount = money.Round(*req.Amount)
		}
		if err := validateAmounts(next.Amount); err != nil {
			return err
		}
		now := s.clock.Now()
		next.ID = s.genID.Generate()
		next.CreatedAt, next.UpdatedAt = now, now

		if err := repo.Update(ctx, current.ID.String(), retired(now)); err != nil {
			return err
		}
		if err := repo.Create(ctx, &next); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.revised", domain.KindFeeAmount, next.ID, map[string]any{
			"supersedes": current.ID.String(),
			"label":      next.Label,
			"amount":     changeOf(current.Amount, next.Amount),
		})
	})
	if err != nil {
		return domain.FeeAmount{}, err
	}
	s.invalidate(schoolID)
	return next, nil
}

func (s *Service) ListTuitionFees(ctx context.Context, req domain.ListRequest) ([]domain.TuitionFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	filter := &domain.TuitionFee{SchoolID: schoolID, AcademicYearID: req.AcademicYearID, IsActive: !req.IncludeInactive}
	items, err := s.tuitionRepo.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListTransportRoutes(ctx context.Context, req domain.ListRequest) ([]domain.TransportRoute, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	filter := &domain.TransportRoute{SchoolID: schoolID, AcademicYearID: req.AcademicYearID, IsActive: !req.IncludeInactive}
	items, err := s.routeRepo.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListUniversalFees(ctx context.Context, req domain.ListRequest) ([]domain.UniversalFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	filter := &domain.UniversalFee{SchoolID: schoolID, AcademicYearID: req.AcademicYearID, IsActive: !req.IncludeInactive}
	items, err := s.universalRepo.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListFeeAmounts(ctx context.Context, req domain.ListRequest) ([]domain.FeeAmount, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	filter := &domain.FeeAmount{SchoolID: schoolID, AcademicYearID: req.AcademicYearID, IsActive: !req.IncludeInactive}
	items, err := s.feeAmountRepo.Find(ctx, filter, newestFirst())
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) Deactivate(ctx context.Context, kind domain.Kind, id snowflake.ID) error {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			found, active bool
			update        func(string, map[string]any) error
		)
		switch kind {
		case domain.KindTuition:
			repo := s.tuitionRepo.WithTrx(tx)
			row, err := repo.FindOne(ctx, &domain.TuitionFee{ID: id, SchoolID: schoolID}, lockRow())
			if err != nil {
				return err
			}
			found, active = row != nil, row != nil && row.IsActive
			update = func(rowID string, v map[string]any) error { return repo.Update(ctx, rowID, v) }
		case domain.KindTransport:
			repo := s.routeRepo.WithTrx(tx)
			row, err := repo.FindOne(ctx, &domain.TransportRoute{ID: id, SchoolID: schoolID}, lockRow())
			if err != nil {
				return err
			}
			found, active = row != nil, row != nil && row.IsActive
			update = func(rowID string, v map[string]any) error { return repo.Update(ctx, rowID, v) }
		case domain.KindUniversal:
			repo := s.universalRepo.WithTrx(tx)
			row, err := repo.FindOne(ctx, &domain.UniversalFee{ID: id, SchoolID: schoolID}, lockRow())
			if err != nil {
				return err
			}
			found, active = row != nil, row != nil && row.IsActive
			update = func(rowID string, v map[string]any) error { return repo.Update(ctx, rowID, v) }
		case domain.KindFeeAmount:
			repo := s.feeAmountRepo.WithTrx(tx)
			row, err := repo.FindOne(ctx, &domain.FeeAmount{ID: id, SchoolID: schoolID}, lockRow())
			if err != nil {
				return err
			}
			found, active = row != nil, row != nil && row.IsActive
			update = func(rowID string, v map[string]any) error { return repo.Update(ctx, rowID, v) }
		default:
			return domain.ErrInvalidKind
		}

		if !found {
			return domain.ErrNotFound
		}
		if !active {
			return nil
		}
		if err := update(id.String(), retired(s.clock.Now())); err != nil {
			return err
		}
		return s.audit(ctx, tx, schoolID, "catalog.deactivated", kind, id, nil)
	})
	if err != nil {
		return err
	}
	s.invalidate(schoolID)
	return nil
}

func (s *Service) ResolveTuition(ctx context.Context, gradeID, academicYearID snowflake.ID) (*domain.TuitionFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey(schoolID, gradeID, academicYearID)
	if cached, ok := s.tuitionCache.Get(key); ok {
		return clone(cached), nil
	}

	fee, err := s.tuitionRepo.FindOne(ctx, &domain.TuitionFee{
		SchoolID:       schoolID,
		GradeID:        gradeID,
		AcademicYearID: academicYearID,
		IsActive:       true,
	}, newestFirst())
	if err != nil {
		return nil, err
	}
	s.tuitionCache.Set(key, fee, lookupTTL)
	return clone(fee), nil
}

func (s *Service) GetRoute(ctx context.Context, routeID snowflake.ID) (*domain.TransportRoute, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey(schoolID, routeID)
	if cached, ok := s.routeCache.Get(key); ok {
		return clone(cached), nil
	}

	route, err := s.routeRepo.FindOne(ctx, &domain.TransportRoute{ID: routeID, SchoolID: schoolID})
	if err != nil {
		return nil, err
	}
	if route != nil && !route.IsActive {
		// A superseded version resolves to the current price of its route.
		route, err = s.routeRepo.FindOne(ctx, &domain.TransportRoute{
			SchoolID: schoolID,
			RouteKey: route.Key(),
			IsActive: true,
		}, newestFirst())
		if err != nil {
			return nil, err
		}
	}
	s.routeCache.Set(key, route, lookupTTL)
	return clone(route), nil
}

func (s *Service) ResolveUniversal(ctx context.Context, academicYearID snowflake.ID, feeType domain.FeeType) (*domain.UniversalFee, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	if !feeType.Valid() {
		return nil, domain.ErrInvalidFeeType
	}
	key := cacheKey(schoolID, academicYearID) + ":" + string(feeType)
	if cached, ok := s.universalCache.Get(key); ok {
		return clone(cached), nil
	}

	fee, err := s.universalRepo.FindOne(ctx, &domain.UniversalFee{
		SchoolID:       schoolID,
		AcademicYearID: academicYearID,
		FeeType:        feeType,
		IsActive:       true,
	}, newestFirst())
	if err != nil {
		return nil, err
	}
	s.universalCache.Set(key, fee, lookupTTL)
	return clone(fee), nil
}

func (s *Service) FeeAmountsForGrade(ctx context.Context, academicYearID snowflake.ID, gradeLabel string) ([]domain.FeeAmount, error) {
	schoolID, err := s.schoolID(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey(schoolID, academicYearID)
	active, ok := s.feeAmountCache.Get(key)
	if !ok {
		items, err := s.feeAmountRepo.Find(ctx, &domain.FeeAmount{
			SchoolID:       schoolID,
			AcademicYearID: academicYearID,
			IsActive:       true,
		}, option.WithSortBy(option.QuerySortBy{SortBy: "created_at", Direction: "asc", Allow: map[string]bool{"created_at": true}}))
		if err != nil {
			return nil, err
		}
		active = deref(items)
		s.feeAmountCache.Set(key, active, lookupTTL)
	}

	out := make([]domain.FeeAmount, 0, len(active))
	for _, fee := range active {
		if grade.AppliesToGrade(gradeLabel, fee.GradeRange) {
			out = append(out, fee)
		}
	}
	return out, nil
}

// checkLabelFree refuses a label already used by another active fee amount
// of the same year whose grades overlap fee's, since one student would then
// carry the same breakdown category twice.
func (s *Service) checkLabelFree(ctx context.Context, tx *gorm.DB, fee domain.FeeAmount) error {
	rng, err := grade.ParseRange(fee.GradeRange)
	if err != nil {
		return domain.ErrInvalidGradeRange
	}
	active, err := s.feeAmountRepo.WithTrx(tx).Find(ctx, &domain.FeeAmount{
		SchoolID:       fee.SchoolID,
		AcademicYearID: fee.AcademicYearID,
		IsActive:       true,
	})
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID == fee.ID || !strings.EqualFold(other.Label, fee.Label) {
			continue
		}
		otherRange, err := grade.ParseRange(other.GradeRange)
		if err != nil || otherRange.Overlaps(rng) {
			return domain.ErrDuplicateLabel
		}
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

func (s *Service) invalidate(schoolID snowflake.ID) {
	prefix := schoolID.String() + ":"
	match := func(key string) bool { return strings.HasPrefix(key, prefix) }
	s.tuitionCache.DeleteFunc(match)
	s.routeCache.DeleteFunc(match)
	s.universalCache.DeleteFunc(match)
	s.feeAmountCache.DeleteFunc(match)
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, action string, kind domain.Kind, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["kind"] = string(kind)
	return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "catalog", ID: id.String()}, action, metadata)
}

func validateAmounts(amounts ...decimal.Decimal) error {
	for _, amount := range amounts {
		if amount.IsNegative() {
			return domain.ErrInvalidAmount
		}
	}
	return nil
}

func checkRevisable(found, active bool) error {
	if !found {
		return domain.ErrNotFound
	}
	if !active {
		return domain.ErrInactive
	}
	return nil
}

func retired(now time.Time) map[string]any {
	return map[string]any{"is_active": false, "updated_at": now}
}

func changeOf(from, to decimal.Decimal) map[string]string {
	return map[string]string{"from": money.Format(from), "to": money.Format(to)}
}

func lockRow() option.QueryOption {
	return option.QueryOptionFunc(db.ForUpdate)
}

func newestFirst() option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}})
}

func cacheKey(schoolID snowflake.ID, parts ...snowflake.ID) string {
	var b strings.Builder
	b.WriteString(schoolID.String())
	for _, p := range parts {
		fmt.Fprintf(&b, ":%d", int64(p))
	}
	return b.String()
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}
