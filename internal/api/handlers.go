package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/workflow"
)

// Upload limit for lesion images.
const maxImageBytes = 10 << 20

type triageRequest struct {
	SymptomText string `json:"symptom_text" binding:"required"`
}

type answersRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// sessionResponse is the standard operation reply.
type sessionResponse struct {
	Session   *domain.SessionState       `json:"session"`
	Directive domain.NavigationDirective `json:"directive"`
}

func resultResponse(result *workflow.Result) sessionResponse {
	return sessionResponse{Session: result.State, Directive: result.Directive}
}

// handleStartTriage creates a session from a symptom narrative.
func (s *Server) handleStartTriage(c *gin.Context) {
	var req triageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("symptom_text", "symptom_text is required"))
		return
	}

	result, err := s.engine.StartTriage(c.Request.Context(), req.SymptomText)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resultResponse(result))
}

// handleGetSession returns the current session state.
func (s *Server) handleGetSession(c *gin.Context) {
	state, err := s.engine.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": state})
}

// handleSubmitAnswers records a completed follow-up round.
func (s *Server) handleSubmitAnswers(c *gin.Context) {
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("answers", "answers map is required"))
		return
	}

	result, err := s.engine.SubmitAnswers(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

// handleSubmitImage accepts a multipart lesion image upload.
func (s *Server) handleSubmitImage(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		s.writeError(c, domain.NewValidationError("image", "multipart field 'image' is required"))
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		s.writeError(c, domain.NewValidationError("image", "failed to read image payload"))
		return
	}
	if len(imageBytes) > maxImageBytes {
		s.writeError(c, domain.NewValidationError("image", "image exceeds the 10MB upload limit"))
		return
	}

	result, err := s.engine.SubmitImage(c.Request.Context(), c.Param("id"), imageBytes)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

// handleRunSynthesis runs the overall analysis stage.
func (s *Server) handleRunSynthesis(c *gin.Context) {
	result, err := s.engine.RunSynthesis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

// handleRunRecommendation runs the care recommendation stage.
func (s *Server) handleRunRecommendation(c *gin.Context) {
	result, err := s.engine.RunRecommendation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

// handleGenerateReport builds and archives the final report.
func (s *Server) handleGenerateReport(c *gin.Context) {
	result, err := s.engine.GenerateReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

// handleGetReport returns the archived report for a session.
func (s *Server) handleGetReport(c *gin.Context) {
	record, err := s.reports.GetBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": record})
}

// handleListReports pages through archived reports, newest first.
func (s *Server) handleListReports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	records, err := s.reports.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": records, "limit": limit, "offset": offset})
}

// writeError maps engine errors to HTTP responses with the standard
// error shape.
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, domain.NewEngineError(
			domain.CodeInvalidInput, verr.Error(), "", c.Param("id")))
		return
	}

	code := domain.CodeForError(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, domain.NewEngineError(code, err.Error(), "", c.Param("id")))
}

func statusForCode(code string) int {
	switch code {
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeSessionStale:
		return http.StatusGone
	case domain.CodeSessionBusy, domain.CodeInvalidTransition:
		return http.StatusConflict
	case domain.CodeCollaboratorUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeParseFailure:
		return http.StatusBadGateway
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
