package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/schoolfee/internal/audit"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/authorization"
	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/smallbiznis/schoolfee/internal/feecatalog"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	"github.com/smallbiznis/schoolfee/internal/feecompute"
	computedomain "github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	"github.com/smallbiznis/schoolfee/internal/invoice"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/internal/notification"
	"github.com/smallbiznis/schoolfee/internal/observability"
	obslogger "github.com/smallbiznis/schoolfee/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/schoolfee/internal/observability/metrics"
	obstracing "github.com/smallbiznis/schoolfee/internal/observability/tracing"
	"github.com/smallbiznis/schoolfee/internal/payment"
	paymentdomain "github.com/smallbiznis/schoolfee/internal/payment/domain"
	"github.com/smallbiznis/schoolfee/internal/preference"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	"github.com/smallbiznis/schoolfee/internal/providers"
	"github.com/smallbiznis/schoolfee/internal/ratelimit"
	"github.com/smallbiznis/schoolfee/internal/school"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	audit.Module,
	school.Module,
	feecatalog.Module,
	preference.Module,
	feecompute.Module,
	invoice.Module,
	payment.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	catalogSvc    catalogdomain.Service
	preferenceSvc prefdomain.Service
	computeSvc    computedomain.Service
	invoiceSvc    invoicedomain.Service
	paymentSvc    paymentdomain.Service
	limiter       *ratelimit.SchoolLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	CatalogSvc    catalogdomain.Service
	PreferenceSvc prefdomain.Service
	ComputeSvc    computedomain.Service
	InvoiceSvc    invoicedomain.Service
	PaymentSvc    paymentdomain.Service
	Limiter       *ratelimit.SchoolLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		catalogSvc:    p.CatalogSvc,
		preferenceSvc: p.PreferenceSvc,
		computeSvc:    p.ComputeSvc,
		invoiceSvc:    p.InvoiceSvc,
		paymentSvc:    p.PaymentSvc,
		limiter:       p.Limiter,
	}
	s.registerAPIRoutes()
	s.registerFallback()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.SchoolContext())

	// -------- Catalog --------
	s.registerCatalogRoutes(api.Group("/catalog"))

	// -------- Preferences --------
	api.GET("/students/:student_id/terms/:term_id/preference", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceView), s.GetPreference)
	api.PUT("/students/:student_id/terms/:term_id/preference", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceUpdate), s.UpdatePreference)
	api.GET("/guardians/:guardian_id/terms/:term_id/preferences", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceView), s.ListGuardianPreferences)
	api.GET("/preferences/:id/history", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceView), s.PreferenceHistory)
	api.POST("/preferences/preview", s.authorize(authorization.ObjectFee, authorization.ActionFeeView), s.PreviewPreference)

	// -------- Computation --------
	api.GET("/students/:student_id/terms/:term_id/fees", s.authorize(authorization.ObjectFee, authorization.ActionFeeView), s.ComputeStudentFees)

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.SchoolRateLimit(ratelimit.ActionGenerate), s.GenerateInvoice)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.SchoolRateLimit(ratelimit.ActionDocument), s.RenderInvoicePDF)
	api.POST("/invoices/:id/recalculate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAdjust), s.RecalculateInvoice)
	api.POST("/invoices/:id/regenerate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.SchoolRateLimit(ratelimit.ActionGenerate), s.RegenerateInvoice)
	api.PATCH("/invoices/:id/plan", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAdjust), s.UpdateInvoicePlan)
	api.PUT("/invoices/:id/line-items/:student_id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAdjust), s.UpsertInvoiceLineItem)
	api.DELETE("/invoices/:id/line-items/:student_id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAdjust), s.RemoveInvoiceLineItem)

	// -------- Payments --------
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	api.POST("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	api.GET("/payments/:id/receipt", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.SchoolRateLimit(ratelimit.ActionDocument), s.RenderPaymentReceipt)
	api.DELETE("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentDelete), s.DeletePayment)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerCatalogRoutes(catalog *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogView)
	manage := s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage)

	catalog.GET("/tuition-fees", view, s.ListTuitionFees)
	catalog.POST("/tuition-fees", manage, s.CreateTuitionFee)
	catalog.PATCH("/tuition-fees/:id", manage, s.ReviseTuitionFee)
	catalog.POST("/tuition-fees/:id/deactivate", manage, s.deactivateCatalog(catalogdomain.KindTuition))

	catalog.GET("/transport-routes", view, s.ListTransportRoutes)
	catalog.POST("/transport-routes", manage, s.CreateTransportRoute)
	catalog.PATCH("/transport-routes/:id", manage, s.ReviseTransportRoute)
	catalog.POST("/transport-routes/:id/deactivate", manage, s.deactivateCatalog(catalogdomain.KindTransport))

	catalog.GET("/universal-fees", view, s.ListUniversalFees)
	catalog.POST("/universal-fees", manage, s.CreateUniversalFee)
	catalog.PATCH("/universal-fees/:id", manage, s.ReviseUniversalFee)
	catalog.POST("/universal-fees/:id/deactivate", manage, s.deactivateCatalog(catalogdomain.KindUniversal))

	catalog.GET("/fee-amounts", view, s.ListFeeAmounts)
	catalog.POST("/fee-amounts", manage, s.CreateFeeAmount)
	catalog.PATCH("/fee-amounts/:id", manage, s.ReviseFeeAmount)
	catalog.POST("/fee-amounts/:id/deactivate", manage, s.deactivateCatalog(catalogdomain.KindFeeAmount))
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

var validatorsOnce sync.Once

// registerValidators adds the enum tags used by request bodies to gin's
// validator engine.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		enum := func(valid func(string) bool) validator.Func {
			return func(fl validator.FieldLevel) bool {
				raw := strings.TrimSpace(fl.Field().String())
				return raw == "" || valid(raw)
			}
		}
		_ = v.RegisterValidation("tuition_type", enum(func(s string) bool { return prefdomain.TuitionType(s).Valid() }))
		_ = v.RegisterValidation("transport_type", enum(func(s string) bool { return prefdomain.TransportType(s).Valid() }))
		_ = v.RegisterValidation("payment_plan", enum(func(s string) bool { return invoicedomain.PaymentPlan(s).Valid() }))
		_ = v.RegisterValidation("payment_method", enum(func(s string) bool { return paymentdomain.Method(s).Valid() }))
		_ = v.RegisterValidation("fee_type", enum(func(s string) bool { return catalogdomain.FeeType(s).Valid() }))
	})
}
