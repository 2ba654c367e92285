package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	computedomain "github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
)

type preferenceBody struct {
	TuitionType      string        `json:"tuition_type" binding:"required,tuition_type"`
	TransportRouteID *snowflake.ID `json:"transport_route_id"`
	TransportType    string        `json:"transport_type" binding:"omitempty,transport_type"`
	IncludeFood      bool          `json:"include_food"`
	IncludeSports    bool          `json:"include_sports"`
	Notes            string        `json:"notes" binding:"max=2000"`
}

type updatePreferenceRequest struct {
	preferenceBody
	Version *int64 `json:"version"`
}

type previewPreferenceRequest struct {
	preferenceBody
	StudentID      snowflake.ID `json:"student_id" binding:"required"`
	AcademicTermID snowflake.ID `json:"academic_term_id" binding:"required"`
	IncludeExtras  bool         `json:"include_extras"`
}

func (b preferenceBody) toDomain(studentID, termID snowflake.ID) prefdomain.UpdatePreferenceRequest {
	transportType := prefdomain.TransportType(b.TransportType)
	if transportType == "" {
		transportType = prefdomain.TransportNone
	}
	return prefdomain.UpdatePreferenceRequest{
		StudentID:        studentID,
		AcademicTermID:   termID,
		TuitionType:      prefdomain.TuitionType(b.TuitionType),
		TransportRouteID: b.TransportRouteID,
		TransportType:    transportType,
		IncludeFood:      b.IncludeFood,
		IncludeSports:    b.IncludeSports,
		Notes:            b.Notes,
	}
}

func studentTermParams(c *gin.Context) (snowflake.ID, snowflake.ID, error) {
	studentID, err := parseIDParam(c, "student_id")
	if err != nil {
		return 0, 0, err
	}
	termID, err := parseIDParam(c, "term_id")
	if err != nil {
		return 0, 0, err
	}
	return studentID, termID, nil
}

func (s *Server) GetPreference(c *gin.Context) {
	studentID, termID, err := studentTermParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pref, err := s.preferenceSvc.GetOrCreate(c.Request.Context(), studentID, termID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pref})
}

// UpdatePreference prices the new selection before saving it, so a
// preference pointing at an unpriced route or grade is never stored.
func (s *Server) UpdatePreference(c *gin.Context) {
	studentID, termID, err := studentTermParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	update := req.toDomain(studentID, termID)
	update.ExpectedVersion = req.Version

	current, err := s.preferenceSvc.GetOrCreate(ctx, studentID, termID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	computeReq := computedomain.ComputeRequest{StudentID: studentID, AcademicTermID: termID}
	if _, err := s.computeSvc.ComputeWithPreference(ctx, computeReq, update.Apply(current)); err != nil {
		AbortWithError(c, err)
		return
	}

	pref, err := s.preferenceSvc.Update(ctx, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	fees, err := s.computeSvc.ComputeWithPreference(ctx, computeReq, pref)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"preference": pref, "fees": fees}})
}

// ListGuardianPreferences returns one preference per student linked to the
// guardian, creating defaults for students that have none yet.
func (s *Server) ListGuardianPreferences(c *gin.Context) {
	guardianID, err := parseIDParam(c, "guardian_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	termID, err := parseIDParam(c, "term_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	prefs, err := s.preferenceSvc.ListForGuardian(c.Request.Context(), guardianID, termID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prefs})
}

func (s *Server) PreferenceHistory(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	changes, err := s.preferenceSvc.History(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": changes})
}

func (s *Server) PreviewPreference(c *gin.Context) {
	var req previewPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	draft := req.toDomain(req.StudentID, req.AcademicTermID).Apply(prefdomain.GuardianFeePreference{
		StudentID:      req.StudentID,
		AcademicTermID: req.AcademicTermID,
	})
	result, err := s.computeSvc.ComputeWithPreference(c.Request.Context(), computedomain.ComputeRequest{
		StudentID:      req.StudentID,
		AcademicTermID: req.AcademicTermID,
		IncludeExtras:  req.IncludeExtras,
	}, draft)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ComputeStudentFees(c *gin.Context) {
	studentID, termID, err := studentTermParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	includeExtras, err := boolQuery(c, "include_extras")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.computeSvc.Compute(c.Request.Context(), computedomain.ComputeRequest{
		StudentID:      studentID,
		AcademicTermID: termID,
		IncludeExtras:  includeExtras,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
