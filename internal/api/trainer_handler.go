// internal/api/trainer_handler.go
package api

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TrainerHandler struct {
	ledgerService      service.LedgerService
	entitlementService service.EntitlementService
	invoiceService     service.InvoiceService
	catalog            service.PlanCatalog
	location           *time.Location
	defaultWeeklyCost  decimal.Decimal
	logger             logrus.FieldLogger
}

func NewTrainerHandler(
	ledgerService service.LedgerService,
	entitlementService service.EntitlementService,
	invoiceService service.InvoiceService,
	catalog service.PlanCatalog,
	location *time.Location,
	defaultWeeklyCost decimal.Decimal,
	logger logrus.FieldLogger,
) *TrainerHandler {
	return &TrainerHandler{
		ledgerService:      ledgerService,
		entitlementService: entitlementService,
		invoiceService:     invoiceService,
		catalog:            catalog,
		location:           location,
		defaultWeeklyCost:  defaultWeeklyCost,
		logger:             logger,
	}
}

// --- Ledger ---

// OpenLedger godoc
// @Summary Open a client's ledger
// @Description Idempotent; an existing ledger is returned untouched.
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} LedgerResponse
// @Failure 400 {object} gin.H "Invalid client ID"
// @Router /trainer/clients/{clientId}/ledger [post]
func (h *TrainerHandler) OpenLedger(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	ledger, err := h.ledgerService.OpenLedger(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to open ledger.")
		return
	}
	c.JSON(http.StatusOK, MapLedgerToResponse(ledger))
}

// GetClientLedger godoc
// @Summary Get a client's ledger
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} LedgerResponse
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /trainer/clients/{clientId}/ledger [get]
func (h *TrainerHandler) GetClientLedger(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	ledger, err := h.ledgerService.GetLedger(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load ledger.")
		return
	}
	c.JSON(http.StatusOK, MapLedgerToResponse(ledger))
}

// ReconcileLedger godoc
// @Summary Recompute a client's running balance from the charge history
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} service.BalanceReport
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /trainer/clients/{clientId}/ledger/reconcile [post]
func (h *TrainerHandler) ReconcileLedger(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	report, err := h.ledgerService.ReconcileBalance(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to reconcile ledger.")
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Plans & charges ---

// GetClientPlan godoc
// @Summary Get the plan a client is entitled to see
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} PlanResponse
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /trainer/clients/{clientId}/plan [get]
func (h *TrainerHandler) GetClientPlan(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	resp, err := resolvePlan(c.Request.Context(), h.entitlementService, h.catalog, h.logger, clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to resolve plan.")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AssignPlan godoc
// @Summary Record a plan assignment for a client
// @Description Appends to the plan history and charges the weekly plan cost in the same transaction.
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Param request body PlanAssignmentRequest true "Plan window and optional weekly cost"
// @Success 201 {object} LedgerResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Router /trainer/clients/{clientId}/plan-assignments [post]
func (h *TrainerHandler) AssignPlan(c *gin.Context) {
	trainerID, ok := callerID(c)
	if !ok {
		return
	}
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	var req PlanAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	planID, err := primitive.ObjectIDFromHex(req.PlanID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid planId format.")
		return
	}
	start, err := parseDay(req.PlanStartDate, h.location)
	if err != nil {
		respondError(c, h.logger, err, "Invalid planStartDate.")
		return
	}
	end, err := parseDay(req.PlanEndDate, h.location)
	if err != nil {
		respondError(c, h.logger, err, "Invalid planEndDate.")
		return
	}
	weeklyCost := h.defaultWeeklyCost
	if req.WeeklyCost != nil {
		weeklyCost = *req.WeeklyCost
	}

	ctx := c.Request.Context()
	assignment := domain.PlanAssignment{
		PlanID:        planID,
		PlanStartDate: start,
		PlanEndDate:   end,
		TrainerID:     trainerID,
	}
	if err := h.ledgerService.AssignPlan(ctx, clientID, assignment, weeklyCost); err != nil {
		respondError(c, h.logger, err, "Failed to assign plan.")
		return
	}
	ledger, err := h.ledgerService.GetLedger(ctx, clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load ledger.")
		return
	}
	c.JSON(http.StatusCreated, MapLedgerToResponse(ledger))
}

// AddCharge godoc
// @Summary Append a charge (e.g. a missed workout penalty) to a client's ledger
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Param request body ChargeRequest true "Charge"
// @Success 201 {object} LedgerResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /trainer/clients/{clientId}/charges [post]
func (h *TrainerHandler) AddCharge(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	date, err := parseDay(req.Date, h.location)
	if err != nil {
		respondError(c, h.logger, err, "Invalid date.")
		return
	}

	ctx := c.Request.Context()
	entry := domain.LedgerEntry{Date: date, Amount: req.Amount, Reason: domain.ChargeReason(req.Reason)}
	if err := h.ledgerService.AppendCharge(ctx, clientID, entry); err != nil {
		respondError(c, h.logger, err, "Failed to append charge.")
		return
	}
	ledger, err := h.ledgerService.GetLedger(ctx, clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load ledger.")
		return
	}
	c.JSON(http.StatusCreated, MapLedgerToResponse(ledger))
}

// --- Invoices ---

// GenerateInvoice godoc
// @Summary Generate (or fetch) a client's invoice for a month
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Param request body InvoiceMonthRequest true "Month, e.g. 2025-01"
// @Success 200 {object} domain.MonthlyInvoice
// @Failure 400 {object} gin.H "Invalid month"
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /trainer/clients/{clientId}/invoices [post]
func (h *TrainerHandler) GenerateInvoice(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	var req InvoiceMonthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	month, err := domain.ParseMonth(req.Month, h.location)
	if err != nil {
		respondError(c, h.logger, err, "Invalid month.")
		return
	}
	invoice, err := h.invoiceService.GenerateMonthlyInvoice(c.Request.Context(), clientID, month)
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate invoice.")
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// GetClientInvoices godoc
// @Summary List a client's invoices, newest first
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {array} domain.MonthlyInvoice
// @Router /trainer/clients/{clientId}/invoices [get]
func (h *TrainerHandler) GetClientInvoices(c *gin.Context) {
	clientID, ok := pathID(c, "clientId")
	if !ok {
		return
	}
	invoices, err := h.invoiceService.ListClientInvoices(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve invoices.")
		return
	}
	if invoices == nil {
		invoices = []domain.MonthlyInvoice{}
	}
	c.JSON(http.StatusOK, invoices)
}

// MarkInvoicePaid godoc
// @Summary Record payment of an invoice
// @Description Marks the invoice PAID and clears the client's running balance atomically.
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param invoiceId path string true "Invoice ID"
// @Success 200 {object} domain.MonthlyInvoice
// @Failure 404 {object} gin.H "Invoice not found"
// @Failure 409 {object} gin.H "Invoice already paid"
// @Router /trainer/invoices/{invoiceId}/pay [post]
func (h *TrainerHandler) MarkInvoicePaid(c *gin.Context) {
	invoiceID, ok := pathID(c, "invoiceId")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.MarkInvoiceAsPaid(c.Request.Context(), invoiceID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to mark invoice as paid.")
		return
	}
	c.JSON(http.StatusOK, invoice)
}
