package handler

import (
	"net/http"

	"settlepos/internal/apierror"
	"settlepos/internal/dto"
	"settlepos/internal/middleware"
	"settlepos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SettlementHandler struct{ svc service.SettlementCoordinator }

func NewSettlementHandler(svc service.SettlementCoordinator) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

// Begin godoc
// @Summary Starts payment collection for a sale total
// @Tags settlements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.BeginSaleRequest true "Sale data"
// @Success 201 {object} dto.SettlementResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/settlements [post]
func (h *SettlementHandler) Begin(c *gin.Context) {
	var req dto.BeginSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid operator id"))
		return
	}

	resp, err := h.svc.BeginSale(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get godoc
// @Summary Returns the current state of a settlement
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Success 200 {object} dto.SettlementResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/settlements/{id} [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), settlementID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddTender godoc
// @Summary Applies a payment instrument to the sale
// @Tags settlements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Param body body dto.AddTenderRequest true "Tender data"
// @Success 201 {object} dto.SettlementResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/settlements/{id}/tenders [post]
func (h *SettlementHandler) AddTender(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}
	var req dto.AddTenderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.AddTender(c.Request.Context(), settlementID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// VoidTender godoc
// @Summary Removes a tender while still collecting
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Param tenderID path string true "Tender ID"
// @Success 200 {object} dto.SettlementResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/settlements/{id}/tenders/{tenderID} [delete]
func (h *SettlementHandler) VoidTender(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}
	tenderID, err := uuid.Parse(c.Param("tenderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid tender id"))
		return
	}

	resp, err := h.svc.VoidTender(c.Request.Context(), settlementID, tenderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmTender godoc
// @Summary Checks an asynchronous tender against the verification gateway
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Param tenderID path string true "Tender ID"
// @Success 200 {object} dto.ConfirmTenderResponse
// @Failure 409 {object} apierror.APIError
// @Failure 502 {object} apierror.APIError
// @Failure 504 {object} apierror.APIError
// @Router /v1/settlements/{id}/tenders/{tenderID}/confirm [post]
func (h *SettlementHandler) ConfirmTender(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}
	tenderID, err := uuid.Parse(c.Param("tenderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid tender id"))
		return
	}

	resp, err := h.svc.ConfirmTender(c.Request.Context(), settlementID, tenderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Finalize godoc
// @Summary Finalizes a settled settlement: posts the ledger and queues emission
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Success 200 {object} dto.FinalizeResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/settlements/{id}/finalize [post]
func (h *SettlementHandler) Finalize(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}

	resp, err := h.svc.Finalize(c.Request.Context(), settlementID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Abandon godoc
// @Summary Abandons a settlement before completion, with no ledger impact
// @Tags settlements
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Success 204
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/settlements/{id}/abandon [post]
func (h *SettlementHandler) Abandon(c *gin.Context) {
	settlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid settlement id"))
		return
	}

	if err := h.svc.Abandon(c.Request.Context(), settlementID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
