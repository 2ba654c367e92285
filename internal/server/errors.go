package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/authorization"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	computedomain "github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/schoolfee/internal/payment/domain"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "validation_error"
	}
	return e.Errors[0].Code
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Kind    string            `json:"kind,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

var invalidRequestErrors = []error{
	ErrInvalidRequest,
	catalogdomain.ErrInvalidSchool,
	catalogdomain.ErrInvalidAcademicYear,
	catalogdomain.ErrInvalidGrade,
	catalogdomain.ErrInvalidAmount,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidFeeType,
	catalogdomain.ErrInvalidGradeRange,
	catalogdomain.ErrReservedLabel,
	catalogdomain.ErrInvalidKind,
	catalogdomain.ErrInactive,
	prefdomain.ErrInvalidSchool,
	prefdomain.ErrInvalidStudent,
	prefdomain.ErrInvalidTerm,
	prefdomain.ErrInvalidTuitionType,
	prefdomain.ErrInvalidTransportType,
	computedomain.ErrInvalidSchool,
	computedomain.ErrInvalidStudent,
	computedomain.ErrInvalidTerm,
	invoicedomain.ErrInvalidSchool,
	invoicedomain.ErrInvalidGuardian,
	invoicedomain.ErrInvalidTerm,
	invoicedomain.ErrInvalidStudent,
	invoicedomain.ErrInvalidPaymentPlan,
	invoicedomain.ErrInvalidDueDate,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidPageToken,
	invoicedomain.ErrInvalidBreakdown,
	paymentdomain.ErrInvalidSchool,
	paymentdomain.ErrInvalidInvoice,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidPaymentDate,
	paymentdomain.ErrInvalidReference,
	schooldomain.ErrInvalidSchool,
	auditdomain.ErrInvalidSchool,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	authorization.ErrInvalidSchool,
}

var notFoundErrors = []error{
	ErrNotFound,
	catalogdomain.ErrNotFound,
	prefdomain.ErrNotFound,
	invoicedomain.ErrInvoiceNotFound,
	invoicedomain.ErrLineItemNotFound,
	paymentdomain.ErrInvoiceNotFound,
	paymentdomain.ErrPaymentNotFound,
	schooldomain.ErrSchoolNotFound,
	schooldomain.ErrTermNotFound,
	schooldomain.ErrStudentNotFound,
	schooldomain.ErrGuardianNotFound,
}

var conflictErrors = []error{
	invoicedomain.ErrInvoiceExists,
	invoicedomain.ErrInvoiceSettled,
	catalogdomain.ErrDuplicateLabel,
	paymentdomain.ErrReferenceConflict,
	prefdomain.ErrVersionConflict,
}

var unprocessableErrors = []error{
	computedomain.ErrMissingCatalogEntry,
	invoicedomain.ErrNoStudents,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		status, payload := mapError(c.Errors.Last().Err)
		c.JSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	var missing *computedomain.MissingCatalogEntryError
	var validationErrs *ValidationErrors
	var bindErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "request validation failed",
			Errors:  validationErrs.Errors,
		}
	case errors.As(err, &bindErrs):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "request validation failed",
			Errors:  fromBindingErrors(bindErrs),
		}
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    computedomain.ErrMissingCatalogEntry.Error(),
			Message: missing.Error(),
			Kind:    string(missing.Kind),
		}
	case errors.Is(err, ErrUnauthorized), errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, ErrForbidden), errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "not allowed to perform this action"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, invoicedomain.ErrRendererMissing),
		errors.Is(err, paymentdomain.ErrRendererMissing),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "document rendering is not available"}
	}

	if code, ok := matchAny(err, unprocessableErrors); ok {
		return http.StatusUnprocessableEntity, errorPayload{Type: code, Message: humanize(code)}
	}
	if code, ok := matchAny(err, conflictErrors); ok {
		return http.StatusConflict, errorPayload{Type: code, Message: humanize(code)}
	}
	if code, ok := matchAny(err, notFoundErrors); ok {
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: humanize(code)}
	}
	if code, ok := matchAny(err, invalidRequestErrors); ok {
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: humanize(code)}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

func matchAny(err error, targets []error) (string, bool) {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func humanize(code string) string {
	return strings.ReplaceAll(code, "_", " ")
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, strconv.Itoa(status)
}

func fromBindingErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		field := toSnake(fe.Field())
		out = append(out, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: field + " failed " + fe.Tag() + " validation",
		})
	}
	return out
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// bindError keeps validator failures intact and turns decoding failures
// into a 400 instead of an internal error.
func bindError(err error) error {
	var bindErrs validator.ValidationErrors
	if errors.As(err, &bindErrs) {
		return err
	}
	return newValidationError("body", ErrInvalidRequest.Error(), "request body could not be decoded")
}
