package api

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/service"
	"alcyxob/fitness-billing/internal/storage"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClientHandler serves the routes a client calls about their own ledger.
// The client id always comes from the token, never from the path.
type ClientHandler struct {
	entitlementService service.EntitlementService
	catalog            service.PlanCatalog
	ledgerService      service.LedgerService
	invoiceService     service.InvoiceService
	location           *time.Location
	logger             logrus.FieldLogger
}

func NewClientHandler(
	entitlementService service.EntitlementService,
	catalog service.PlanCatalog,
	ledgerService service.LedgerService,
	invoiceService service.InvoiceService,
	location *time.Location,
	logger logrus.FieldLogger,
) *ClientHandler {
	return &ClientHandler{
		entitlementService: entitlementService,
		catalog:            catalog,
		ledgerService:      ledgerService,
		invoiceService:     invoiceService,
		location:           location,
		logger:             logger,
	}
}

// GetMyPlan godoc
// @Summary Get the plan the client is entitled to see
// @Description Resolves the current, upcoming or most recent plan and attaches its catalog summary.
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Success 200 {object} PlanResponse
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "Ledger not found"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /client/plan [get]
func (h *ClientHandler) GetMyPlan(c *gin.Context) {
	clientID, ok := callerID(c)
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

// UnlockPlan godoc
// @Summary Unlock a plan from the client's history
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Training plan ID"
// @Success 200 {object} PlanResponse "Entitlement after unlocking"
// @Failure 400 {object} gin.H "Invalid plan ID"
// @Failure 404 {object} gin.H "Ledger not found"
// @Failure 422 {object} gin.H "Plan was never assigned to this client"
// @Router /client/plans/{planId}/unlock [post]
func (h *ClientHandler) UnlockPlan(c *gin.Context) {
	clientID, ok := callerID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "planId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.ledgerService.UnlockPlan(ctx, clientID, planID); err != nil {
		respondError(c, h.logger, err, "Failed to unlock plan.")
		return
	}
	resp, err := resolvePlan(ctx, h.entitlementService, h.catalog, h.logger, clientID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to resolve plan.")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetMyLedger godoc
// @Summary Get the client's balance and charge history
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Success 200 {object} LedgerResponse
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /client/ledger [get]
func (h *ClientHandler) GetMyLedger(c *gin.Context) {
	clientID, ok := callerID(c)
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

// GetMyInvoices godoc
// @Summary List the client's monthly invoices, newest first
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.MonthlyInvoice
// @Router /client/invoices [get]
func (h *ClientHandler) GetMyInvoices(c *gin.Context) {
	clientID, ok := callerID(c)
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

// GenerateMyInvoice godoc
// @Summary Generate (or fetch) the invoice for a month
// @Description Idempotent: asking again for the same month returns the stored invoice.
// @Tags Client
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InvoiceMonthRequest true "Month, e.g. 2025-01"
// @Success 200 {object} domain.MonthlyInvoice
// @Failure 400 {object} gin.H "Invalid month"
// @Failure 404 {object} gin.H "Ledger not found"
// @Router /client/invoices [post]
func (h *ClientHandler) GenerateMyInvoice(c *gin.Context) {
	clientID, ok := callerID(c)
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

// GetStatementURL godoc
// @Summary Get a short-lived download link for an invoice statement
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Param invoiceId path string true "Invoice ID"
// @Success 200 {object} StatementURLResponse
// @Failure 404 {object} gin.H "Invoice or statement not found"
// @Router /client/invoices/{invoiceId}/statement [get]
func (h *ClientHandler) GetStatementURL(c *gin.Context) {
	clientID, ok := callerID(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "invoiceId")
	if !ok {
		return
	}
	url, err := h.invoiceService.GetStatementURL(c.Request.Context(), clientID, invoiceID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate statement URL.")
		return
	}
	c.JSON(http.StatusOK, StatementURLResponse{
		URL:       url,
		ExpiresIn: int(storage.DefaultPresignedURLExpiry.Seconds()),
	})
}

// resolvePlan is shared by the client and trainer plan routes. A catalog
// miss does not fail the request; the entitlement is returned without a
// summary.
func resolvePlan(
	ctx context.Context,
	entitlements service.EntitlementService,
	catalog service.PlanCatalog,
	logger logrus.FieldLogger,
	clientID primitive.ObjectID,
) (PlanResponse, error) {
	ent, err := entitlements.ResolveCurrentPlan(ctx, clientID)
	if err != nil {
		return PlanResponse{}, err
	}
	if !ent.HasPlan() || catalog == nil {
		return MapEntitlementToResponse(ent, nil), nil
	}

	summary, err := catalog.GetPlanSummary(ctx, ent.Plan.PlanID)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"clientId": clientID.Hex(),
			"planId":   ent.Plan.PlanID.Hex(),
		}).Warn("plan summary unavailable")
		return MapEntitlementToResponse(ent, nil), nil
	}
	return MapEntitlementToResponse(ent, summary), nil
}
