package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"settlepos/internal/apierror"
	"settlepos/internal/dto"
	"settlepos/internal/middleware"
	"settlepos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SessionHandler struct{ svc service.SessionService }

func NewSessionHandler(svc service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Open godoc
// @Summary Opens a new cash session for the authenticated operator
// @Tags cash-sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 201 {object} dto.SessionReportResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid operator id"))
		return
	}

	resp, err := h.svc.Open(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// PostMovement godoc
// @Summary Posts a manual income or expense movement
// @Tags cash-sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.PostMovementRequest true "Movement data"
// @Success 201 {object} dto.MovementResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-sessions/{id}/movements [post]
func (h *SessionHandler) PostMovement(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	var req dto.PostMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid operator id"))
		return
	}

	resp, err := h.svc.PostMovement(c.Request.Context(), sessionID, operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Closes a session with a blind count declaration
// @Tags cash-sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.CloseSessionRequest true "Counted amount"
// @Success 200 {object} dto.CloseSessionResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-sessions/{id}/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	closedBy, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid operator id"))
		return
	}

	resp, err := h.svc.Close(c.Request.Context(), sessionID, closedBy, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Report godoc
// @Summary Returns the full report for a session
// @Tags cash-sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionReportResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash-sessions/{id}/report [get]
func (h *SessionHandler) Report(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	resp, err := h.svc.Report(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReportPDF godoc
// @Summary Downloads the session report as a PDF
// @Tags cash-sessions
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash-sessions/{id}/report.pdf [get]
func (h *SessionHandler) ReportPDF(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	path, err := h.svc.ReportPDF(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, fmt.Sprintf("session_%s.pdf", sessionID))
}

// Active returns the currently open session for the authenticated operator.
func (h *SessionHandler) Active(c *gin.Context) {
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid operator id"))
		return
	}
	resp, err := h.svc.Active(c.Request.Context(), operatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History returns a paginated list of closed sessions.
func (h *SessionHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	resp, err := h.svc.History(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
