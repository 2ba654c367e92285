package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/audit/masking"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListSize = 50
	maxListSize     = 250
)

// sensitiveKeys are masked in every metadata payload before it is stored.
var sensitiveKeys = []string{"reference_number"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, target auditdomain.Target, action string, metadata map[string]any) error {
	err := s.RecordTx(ctx, s.db, target, action, metadata)
	if err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
	return err
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, target auditdomain.Target, action string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if tx == nil {
		tx = s.db
	}
	return s.repo.Insert(ctx, tx, s.entry(ctx, target, action, metadata))
}

// entry stamps the row with everything the request context knows: school,
// actor, request id and client details.
func (s *Service) entry(ctx context.Context, target auditdomain.Target, action string, metadata map[string]any) *auditdomain.AuditLog {
	row := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(auditdomain.ActorTypeSystem),
		Action:     action,
		TargetType: orUnknown(target.Type),
		TargetID:   optional(target.ID),
		CreatedAt:  s.clock.Now().UTC(),
	}

	schoolID := target.SchoolID
	if schoolID == 0 {
		schoolID, _ = schoolcontext.SchoolIDFromContext(ctx)
	}
	if schoolID != 0 {
		row.SchoolID = &schoolID
	}
	if actorType, actorID := auditcontext.ActorFromContext(ctx); actorType != "" {
		row.ActorType = actorType
		row.ActorID = optional(actorID)
	}
	row.IPAddress = optional(auditcontext.IPAddressFromContext(ctx))
	row.UserAgent = optional(auditcontext.UserAgentFromContext(ctx))

	payload := make(datatypes.JSONMap, len(metadata)+1)
	for k, v := range masking.MaskFields(metadata, sensitiveKeys...) {
		if k != "" {
			payload[k] = v
		}
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	row.Metadata = payload
	return row
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	var out auditdomain.ListAuditLogResponse

	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return out, auditdomain.ErrInvalidSchool
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return out, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return out, err
	}
	size := req.PageSize
	switch {
	case size <= 0:
		size = defaultListSize
	case size > maxListSize:
		size = maxListSize
	}

	rows, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		SchoolID:   schoolID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      size,
	})
	if err != nil {
		return out, err
	}

	page := pagination.BuildCursorPageInfo(rows, int32(size), func(row *auditdomain.AuditLog) string {
		return pagination.CursorFor(row.ID.String(), row.CreatedAt)
	})
	if len(rows) > size {
		rows = rows[:size]
	}
	out.PageInfo = *page
	out.AuditLogs = make([]auditdomain.AuditLog, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out.AuditLogs = append(out.AuditLogs, *row)
		}
	}
	return out, nil
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, id, err := decoded.Keyset()
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: snowflake.ID(id), CreatedAt: createdAt}, nil
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

func optional(v string) *string {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}
