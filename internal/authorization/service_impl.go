package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCatalog    = "catalog"
	ObjectPreference = "preference"
	ObjectFee        = "fee"
	ObjectInvoice    = "invoice"
	ObjectPayment    = "payment"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionCatalogView   = "catalog.view"
	ActionCatalogManage = "catalog.manage"

	ActionPreferenceView   = "preference.view"
	ActionPreferenceUpdate = "preference.update"

	ActionFeeView = "fee.view"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceAdjust   = "invoice.adjust"

	ActionPaymentView   = "payment.view"
	ActionPaymentRecord = "payment.record"
	ActionPaymentDelete = "payment.delete"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleTeacher = "teacher"
	RoleSystem  = "system"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// request is one parsed Authorize call.
type request struct {
	actor    string
	schoolID snowflake.ID
	object   string
	action   string
}

func parseRequest(actor, schoolID, object, action string) (request, error) {
	req := request{
		actor:  strings.TrimSpace(actor),
		object: strings.TrimSpace(object),
		action: strings.TrimSpace(action),
	}
	if req.actor == "" {
		return req, ErrInvalidActor
	}
	id, err := snowflake.ParseString(strings.TrimSpace(schoolID))
	if err != nil || id == 0 {
		return req, ErrInvalidSchool
	}
	req.schoolID = id
	switch {
	case req.object == "":
		return req, ErrInvalidObject
	case req.action == "":
		return req, ErrInvalidAction
	}
	return req, nil
}

func (r request) domain() string {
	return "school:" + r.schoolID.String()
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, schoolID string, object string, action string) error {
	req, err := parseRequest(actor, schoolID, object, action)
	if err != nil {
		return err
	}

	role, staffID, err := s.roleOf(ctx, req)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			s.auditDenied(ctx, req.schoolID, staffID, req.object, req.action)
		}
		return err
	}
	if err := s.syncRole(req.actor, role, req.domain()); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(req.actor, req.domain(), req.object, req.action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, req.schoolID, staffID, req.object, req.action)
		return ErrForbidden
	}
	return nil
}

// roleOf maps the actor to its casbin role. Staff roles come from the
// school's staff roster; staff without an active row are forbidden.
func (s *ServiceImpl) roleOf(ctx context.Context, req request) (string, *string, error) {
	if req.actor == RoleSystem {
		return "role:" + RoleSystem, nil, nil
	}
	staffID, ok := strings.CutPrefix(req.actor, "staff:")
	staffID = strings.TrimSpace(staffID)
	if !ok || staffID == "" {
		return "", nil, ErrInvalidActor
	}

	var roles []string
	err := s.db.WithContext(ctx).
		Model(&schooldomain.StaffMember{}).
		Where("school_id = ? AND staff_id = ? AND is_active = ?", req.schoolID, staffID, true).
		Limit(1).
		Pluck("role", &roles).Error
	if err != nil {
		return "", &staffID, err
	}
	if len(roles) == 0 || strings.TrimSpace(roles[0]) == "" {
		return "", &staffID, ErrForbidden
	}
	return "role:" + strings.ToLower(strings.TrimSpace(roles[0])), &staffID, nil
}

// syncRole leaves subject with exactly one role in domain, so a roster
// change applies on the next request.
func (s *ServiceImpl) syncRole(subject, role, domain string) error {
	links, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	current := false
	for _, link := range links {
		if len(link) >= 2 && link[1] == role {
			current = true
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(link); err != nil {
			return err
		}
	}
	if current {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role, domain)
	return err
}

// auditDenied records the refusal outside any transaction so it survives
// the failed request.
func (s *ServiceImpl) auditDenied(ctx context.Context, schoolID snowflake.ID, staffID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	if staffID != nil {
		ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, *staffID)
	}
	target := auditdomain.Target{SchoolID: schoolID, Type: "authorization", ID: object}
	if err := s.auditSvc.Record(ctx, target, "authorization.denied", map[string]any{"action": action}); err != nil {
		s.log.Debug("audit denied write failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	bursar := [][2]string{
		{ObjectCatalog, ActionCatalogView},
		{ObjectPreference, ActionPreferenceView},
		{ObjectPreference, ActionPreferenceUpdate},
		{ObjectFee, ActionFeeView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectInvoice, ActionInvoiceGenerate},
		{ObjectInvoice, ActionInvoiceAdjust},
		{ObjectPayment, ActionPaymentView},
		{ObjectPayment, ActionPaymentRecord},
	}
	teacher := [][2]string{
		{ObjectPreference, ActionPreferenceView},
		{ObjectFee, ActionFeeView},
		{ObjectInvoice, ActionInvoiceView},
	}
	adminOnly := [][2]string{
		{ObjectCatalog, ActionCatalogManage},
		{ObjectPayment, ActionPaymentDelete},
		{ObjectAuditLog, ActionAuditLogView},
	}
	system := [][2]string{
		{ObjectInvoice, ActionInvoiceView},
		{ObjectInvoice, ActionInvoiceAdjust},
	}

	var policies [][]string
	add := func(role string, rules [][2]string) {
		for _, rule := range rules {
			policies = append(policies, []string{"role:" + role, rule[0], rule[1]})
		}
	}
	add(RoleAdmin, bursar)
	add(RoleAdmin, adminOnly)
	add(RoleBursar, bursar)
	add(RoleTeacher, teacher)
	add(RoleSystem, system)

	for _, policy := range policies {
		// AddPolicy reports false for rules that already exist.
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
