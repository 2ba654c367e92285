package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
)

type createTuitionFeeRequest struct {
	GradeID        snowflake.ID    `json:"grade_id" binding:"required"`
	AcademicYearID snowflake.ID    `json:"academic_year_id" binding:"required"`
	AmountFullDay  decimal.Decimal `json:"amount_full_day"`
	AmountHalfDay  decimal.Decimal `json:"amount_half_day"`
}

type createTransportRouteRequest struct {
	AcademicYearID snowflake.ID    `json:"academic_year_id" binding:"required"`
	Name           string          `json:"name" binding:"required,max=120"`
	AmountOneWay   decimal.Decimal `json:"amount_one_way"`
	AmountTwoWay   decimal.Decimal `json:"amount_two_way"`
}

type createUniversalFeeRequest struct {
	AcademicYearID snowflake.ID    `json:"academic_year_id" binding:"required"`
	FeeType        string          `json:"fee_type" binding:"required,fee_type"`
	Amount         decimal.Decimal `json:"amount"`
}

type createFeeAmountRequest struct {
	AcademicYearID snowflake.ID    `json:"academic_year_id" binding:"required"`
	Label          string          `json:"label" binding:"required,max=120"`
	GradeRange     string          `json:"grade_range" binding:"required,max=32"`
	Amount         decimal.Decimal `json:"amount"`
}

type reviseCatalogRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	AmountFullDay *decimal.Decimal `json:"amount_full_day"`
	AmountHalfDay *decimal.Decimal `json:"amount_half_day"`
	AmountOneWay  *decimal.Decimal `json:"amount_one_way"`
	AmountTwoWay  *decimal.Decimal `json:"amount_two_way"`
	Name          *string          `json:"name" binding:"omitempty,max=120"`
	Label         *string          `json:"label" binding:"omitempty,max=120"`
}

func (r reviseCatalogRequest) toDomain(id snowflake.ID) catalogdomain.ReviseRequest {
	return catalogdomain.ReviseRequest{
		ID:            id,
		Amount:        r.Amount,
		AmountFullDay: r.AmountFullDay,
		AmountHalfDay: r.AmountHalfDay,
		AmountOneWay:  r.AmountOneWay,
		AmountTwoWay:  r.AmountTwoWay,
		Name:          r.Name,
		Label:         r.Label,
	}
}

func catalogListRequest(c *gin.Context) (catalogdomain.ListRequest, error) {
	yearID, err := parseOptionalSnowflakeID(c.Query("academic_year_id"))
	if err != nil {
		return catalogdomain.ListRequest{}, newValidationError("academic_year_id", "invalid_academic_year", "academic_year_id must be a valid id")
	}
	if yearID == nil {
		return catalogdomain.ListRequest{}, newValidationError("academic_year_id", "invalid_academic_year", "academic_year_id is required")
	}
	includeInactive, err := boolQuery(c, "include_inactive")
	if err != nil {
		return catalogdomain.ListRequest{}, err
	}
	return catalogdomain.ListRequest{AcademicYearID: *yearID, IncludeInactive: includeInactive}, nil
}

func (s *Server) ListTuitionFees(c *gin.Context) {
	req, err := catalogListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.catalogSvc.ListTuitionFees(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTuitionFee(c *gin.Context) {
	var req createTuitionFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	item, err := s.catalogSvc.CreateTuitionFee(c.Request.Context(), catalogdomain.CreateTuitionFeeRequest{
		GradeID:        req.GradeID,
		AcademicYearID: req.AcademicYearID,
		AmountFullDay:  req.AmountFullDay,
		AmountHalfDay:  req.AmountHalfDay,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ReviseTuitionFee(c *gin.Context) {
	id, req, ok := bindRevise(c)
	if !ok {
		return
	}
	item, err := s.catalogSvc.ReviseTuitionFee(c.Request.Context(), req.toDomain(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListTransportRoutes(c *gin.Context) {
	req, err := catalogListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.catalogSvc.ListTransportRoutes(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTransportRoute(c *gin.Context) {
	var req createTransportRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	item, err := s.catalogSvc.CreateTransportRoute(c.Request.Context(), catalogdomain.CreateTransportRouteRequest{
		AcademicYearID: req.AcademicYearID,
		Name:           req.Name,
		AmountOneWay:   req.AmountOneWay,
		AmountTwoWay:   req.AmountTwoWay,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ReviseTransportRoute(c *gin.Context) {
	id, req, ok := bindRevise(c)
	if !ok {
		return
	}
	item, err := s.catalogSvc.ReviseTransportRoute(c.Request.Context(), req.toDomain(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListUniversalFees(c *gin.Context) {
	req, err := catalogListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.catalogSvc.ListUniversalFees(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateUniversalFee(c *gin.Context) {
	var req createUniversalFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	item, err := s.catalogSvc.CreateUniversalFee(c.Request.Context(), catalogdomain.CreateUniversalFeeRequest{
		AcademicYearID: req.AcademicYearID,
		FeeType:        catalogdomain.FeeType(req.FeeType),
		Amount:         req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ReviseUniversalFee(c *gin.Context) {
	id, req, ok := bindRevise(c)
	if !ok {
		return
	}
	item, err := s.catalogSvc.ReviseUniversalFee(c.Request.Context(), req.toDomain(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListFeeAmounts(c *gin.Context) {
	req, err := catalogListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.catalogSvc.ListFeeAmounts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateFeeAmount(c *gin.Context) {
	var req createFeeAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	item, err := s.catalogSvc.CreateFeeAmount(c.Request.Context(), catalogdomain.CreateFeeAmountRequest{
		AcademicYearID: req.AcademicYearID,
		Label:          req.Label,
		GradeRange:     req.GradeRange,
		Amount:         req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ReviseFeeAmount(c *gin.Context) {
	id, req, ok := bindRevise(c)
	if !ok {
		return
	}
	item, err := s.catalogSvc.ReviseFeeAmount(c.Request.Context(), req.toDomain(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) deactivateCatalog(kind catalogdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.catalogSvc.Deactivate(c.Request.Context(), kind, id); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String(), "kind": string(kind), "active": false}})
	}
}

func bindRevise(c *gin.Context) (snowflake.ID, reviseCatalogRequest, bool) {
	var req reviseCatalogRequest
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return 0, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return 0, req, false
	}
	return id, req, true
}
