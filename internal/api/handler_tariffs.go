package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetServicePrices handles GET /api/service-prices: the tariff rows active
// right now. An empty list is a valid answer; billing falls back to the
// configured defaults in that case, it does not fail.
func (h *Handler) GetServicePrices(c *gin.Context) {
	now := time.Now().UTC()

	prices, err := h.store.ListServicePrices(c.Request.Context(), now)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prices": prices,
		"rates":  h.store.ActiveRates(c.Request.Context(), now),
	})
}
