package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dorm-billing-backend/internal/billing"
	"dorm-billing-backend/internal/model"
	"dorm-billing-backend/internal/mw"
	"dorm-billing-backend/internal/notification"
)

type putInvoiceStatusRequest struct {
	Status model.InvoiceStatus `json:"status" binding:"required"`
}

// PutInvoiceStatus handles PUT /api/invoices/:code/status. The transition is
// validated against the invoice state machine for the acting role and applied
// with a conditional update, so a stale concurrent transition gets a 409
// instead of silently winning.
func (h *Handler) PutInvoiceStatus(c *gin.Context) {
	code := c.Param("code")

	var req putInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoice, err := h.store.TransitionInvoice(c.Request.Context(), code, mw.RoleFrom(c), req.Status, time.Now().UTC())
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	if invoice.Status == model.InvoiceStatusPaid {
		h.pool.Dispatch(notification.Event{
			Kind:        notification.EventInvoicePaid,
			RoomID:      invoice.RoomID,
			InvoiceCode: invoice.InvoiceCode,
			Amount:      invoice.Amount,
		})
	}

	c.JSON(http.StatusOK, invoice)
}

// GetStudentInvoices handles GET /api/invoices?student_id=...: the student
// bill-listing projection (their room's invoices, OVERDUE derived).
func (h *Handler) GetStudentInvoices(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Query("student_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
		return
	}

	rows, err := h.store.ListInvoicesByStudent(c.Request.Context(), studentID, time.Now().UTC())
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetBuildingInvoices handles GET /api/invoices/manager/building: the
// manager's per-building bill listing, optionally narrowed to one period.
func (h *Handler) GetBuildingInvoices(c *gin.Context) {
	buildingID, err := strconv.ParseInt(c.Query("building_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid building_id"})
		return
	}

	var period *billing.Period
	if c.Query("month") != "" || c.Query("year") != "" {
		p, ok := periodFromQuery(c)
		if !ok {
			return
		}
		period = &p
	}

	rows, err := h.store.ListInvoicesByBuilding(c.Request.Context(), buildingID, period, time.Now().UTC())
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
