package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dorm-billing-backend/internal/billing"
	"dorm-billing-backend/internal/model"
	"dorm-billing-backend/internal/notification"
	"dorm-billing-backend/internal/store"
)

// periodFromQuery reads the month/year pair every billing query carries.
func periodFromQuery(c *gin.Context) (billing.Period, bool) {
	month, errM := strconv.Atoi(c.Query("month"))
	year, errY := strconv.Atoi(c.Query("year"))
	if errM != nil || errY != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "month and year are required integers"})
		return billing.Period{}, false
	}
	p := billing.Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return billing.Period{}, false
	}
	return p, true
}

// GetUsageStatus handles GET /api/usage-status?month&year&building_id.
// It is the manager's recorded/pending dashboard for one billing period.
func (h *Handler) GetUsageStatus(c *gin.Context) {
	p, ok := periodFromQuery(c)
	if !ok {
		return
	}

	var buildingID *int64
	if raw := c.Query("building_id"); raw != "" && raw != "all" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid building_id"})
			return
		}
		buildingID = &id
	}

	rows, err := h.store.UsageStatus(c.Request.Context(), p, buildingID, time.Now().UTC())
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// usagePriorResponse reports the carry-forward baseline for a room/period.
type usagePriorResponse struct {
	Found bool                `json:"found"`
	Usage *model.MonthlyUsage `json:"usage,omitempty"`
}

// GetUsagePrior handles GET /api/usage-prior?room_id&month&year: the room's
// most recent usage strictly before the period, used to pre-fill the old
// indices when a manager records a reading. No prior reading is not an error.
func (h *Handler) GetUsagePrior(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Query("room_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
		return
	}
	p, ok := periodFromQuery(c)
	if !ok {
		return
	}

	usage, err := h.store.FindPriorUsage(c.Request.Context(), roomID, p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, usagePriorResponse{Found: false})
			return
		}
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, usagePriorResponse{Found: true, Usage: usage})
}

type postUsageRequest struct {
	RoomID              int64 `json:"room_id" binding:"required"`
	Month               int   `json:"month" binding:"required"`
	Year                int   `json:"year" binding:"required"`
	ElectricityNewIndex int64 `json:"electricity_new_index"`
	WaterNewIndex       int64 `json:"water_new_index"`
}

type postUsageResponse struct {
	Usage   *model.MonthlyUsage `json:"usage"`
	Invoice *model.Invoice      `json:"invoice"`
}

// PostUsage handles POST /api/usages: the server resolves old indices from
// the prior period and unit prices from the active tariffs, persists the
// usage and issues the utility invoice.
func (h *Handler) PostUsage(c *gin.Context) {
	var req postUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	usage, invoice, err := h.store.RecordUsage(c.Request.Context(), store.RecordUsageInput{
		RoomID:              req.RoomID,
		Period:              billing.Period{Month: req.Month, Year: req.Year},
		ElectricityNewIndex: req.ElectricityNewIndex,
		WaterNewIndex:       req.WaterNewIndex,
		Now:                 time.Now().UTC(),
	})
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	h.pool.Dispatch(notification.Event{
		Kind:        notification.EventInvoiceIssued,
		RoomID:      usage.RoomID,
		InvoiceCode: invoice.InvoiceCode,
		Amount:      invoice.Amount,
	})

	c.JSON(http.StatusCreated, postUsageResponse{Usage: usage, Invoice: invoice})
}
