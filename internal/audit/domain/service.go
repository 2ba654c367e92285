package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"gorm.io/gorm"
)

// Target names the record an audit entry is about. A zero SchoolID is
// filled from the request context.
type Target struct {
	SchoolID snowflake.ID
	Type     string
	ID       string
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service writes and reads the audit trail. The actor always comes from
// ctx; requests without one are recorded as the system.
type Service interface {
	// Record writes on its own connection. Use it for events that must
	// survive a rolled back transaction, such as denied access.
	Record(ctx context.Context, target Target, action string, metadata map[string]any) error
	// RecordTx writes through tx so the entry commits with the change.
	RecordTx(ctx context.Context, tx *gorm.DB, target Target, action string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidSchool    = errors.New("invalid_school")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
