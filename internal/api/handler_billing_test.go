package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dorm-billing-backend/config"
	dbpkg "dorm-billing-backend/internal/db"
	"dorm-billing-backend/internal/model"
	"dorm-billing-backend/internal/mw"
	"dorm-billing-backend/internal/notification"
	"dorm-billing-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	pool   *notification.WorkerPool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbpkg.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Billing.FallbackElectricityPrice = 3500
	cfg.Billing.FallbackWaterPrice = 6000
	cfg.Billing.DueDays = 15

	appStore := store.NewGormStore(gormDB, cfg.Billing, nil)
	// Not started: dispatched events stay queued for inspection.
	pool := notification.NewWorkerPool(8, gormDB, &webpush.Options{}, nil)
	router := NewRouter(appStore, cfg, &webpush.Options{VAPIDPublicKey: "test-public-key"}, pool, nil)

	return &testEnv{router: router, db: gormDB, pool: pool}
}

func (e *testEnv) request(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if role != "" {
		req.Header.Set(mw.RoleHeader, role)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedRoom(t *testing.T) model.Room {
	t.Helper()

	building := model.Building{Name: "A1"}
	require.NoError(t, e.db.Create(&building).Error)
	room := model.Room{BuildingID: building.ID, Number: "101", Floor: 1}
	require.NoError(t, e.db.Create(&room).Error)
	return room
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)

	// No role header at all.
	w := env.request(t, "GET", "/api/usage-status?month=5&year=2024", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Students cannot reach manager endpoints.
	w = env.request(t, "GET", "/api/usage-status?month=5&year=2024", "student", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.request(t, "POST", "/api/usages", "student", gin.H{"room_id": 1, "month": 5, "year": 2024})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The VAPID key endpoint needs no role.
	w = env.request(t, "GET", "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())
}

func TestPostUsageAndInvoiceFlow(t *testing.T) {
	env := newTestEnv(t)
	room := env.seedRoom(t)

	w := env.request(t, "POST", "/api/usages", "manager", gin.H{
		"room_id":               room.ID,
		"month":                 5,
		"year":                  2024,
		"electricity_new_index": 150,
		"water_new_index":       20,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Usage   model.MonthlyUsage `json:"usage"`
		Invoice model.Invoice      `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, int64(150*3500+20*6000), created.Usage.TotalAmount)
	assert.Equal(t, model.InvoiceStatusUnpaid, created.Invoice.Status)
	code := created.Invoice.InvoiceCode

	// The issued-invoice notification was queued for the room.
	select {
	case event := <-env.pool.Jobs():
		assert.Equal(t, notification.EventInvoiceIssued, event.Kind)
		assert.Equal(t, room.ID, event.RoomID)
	default:
		t.Fatal("expected an invoice-issued event")
	}

	// Student asserts payment.
	w = env.request(t, "PUT", "/api/invoices/"+code+"/status", "student", gin.H{"status": "SUBMITTED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Student cannot self-confirm.
	w = env.request(t, "PUT", "/api/invoices/"+code+"/status", "student", gin.H{"status": "PAID"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Manager confirms.
	w = env.request(t, "PUT", "/api/invoices/"+code+"/status", "manager", gin.H{"status": "PAID"})
	require.Equal(t, http.StatusOK, w.Code)
	var paid model.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	select {
	case event := <-env.pool.Jobs():
		assert.Equal(t, notification.EventInvoicePaid, event.Kind)
	default:
		t.Fatal("expected an invoice-paid event")
	}

	// PAID is terminal.
	w = env.request(t, "PUT", "/api/invoices/"+code+"/status", "manager", gin.H{"status": "UNPAID"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown invoice code.
	w = env.request(t, "PUT", "/api/invoices/INV-UTL-000000-DEADBEEF/status", "manager", gin.H{"status": "PAID"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Re-recording a paid period is refused.
	w = env.request(t, "POST", "/api/usages", "manager", gin.H{
		"room_id": room.ID, "month": 5, "year": 2024,
		"electricity_new_index": 180, "water_new_index": 25,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetUsagePrior(t *testing.T) {
	env := newTestEnv(t)
	room := env.seedRoom(t)

	w := env.request(t, "GET", fmt.Sprintf("/api/usage-prior?room_id=%d&month=5&year=2024", room.ID), "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found":false}`, w.Body.String())

	require.NoError(t, env.db.Create(&model.MonthlyUsage{
		RoomID: room.ID, Month: 4, Year: 2024,
		ElectricityNewIndex: 100, ElectricityPrice: 3500,
		WaterNewIndex: 10, WaterPrice: 6000,
	}).Error)

	w = env.request(t, "GET", fmt.Sprintf("/api/usage-prior?room_id=%d&month=5&year=2024", room.ID), "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Found bool                `json:"found"`
		Usage *model.MonthlyUsage `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 4, resp.Usage.Month)

	w = env.request(t, "GET", "/api/usage-prior?room_id=abc&month=5&year=2024", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsageStatusValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/usage-status?month=13&year=2024", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, "GET", "/api/usage-status?month=5", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, "GET", "/api/usage-status?month=5&year=2024&building_id=abc", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, "GET", "/api/usage-status?month=5&year=2024", "manager", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetBuildings(t *testing.T) {
	env := newTestEnv(t)
	room := env.seedRoom(t)

	w := env.request(t, "GET", "/api/buildings", "student", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var buildings []BuildingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buildings))
	require.Len(t, buildings, 1)
	assert.Equal(t, "A1", buildings[0].Name)
	assert.Equal(t, int64(1), buildings[0].TotalRooms)
	assert.Equal(t, 1, buildings[0].MaxFloor)

	w = env.request(t, "GET", fmt.Sprintf("/api/buildings/%d/rooms", room.BuildingID), "student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []roomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Nil(t, rooms[0].LastRecordedMonth)
}

func TestPostBuildingRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.seedRoom(t)
	base := fmt.Sprintf("/api/buildings/%d/rooms", room.BuildingID)

	w := env.request(t, "POST", base, "student", gin.H{"number": "A-312"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.request(t, "POST", base, "manager", gin.H{"number": "A-312"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "A-312", created.Number)
	assert.Equal(t, 3, created.Floor)

	// Duplicate number in the same building.
	w = env.request(t, "POST", base, "manager", gin.H{"number": "A-312"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// No numeric part to derive a floor from.
	w = env.request(t, "POST", base, "manager", gin.H{"number": "annex"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, "POST", "/api/buildings/9999/rooms", "manager", gin.H{"number": "201"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetServicePrices(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&model.ServicePrice{
		ServiceName: model.ServiceElectricity, UnitPrice: 3800,
		EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}).Error)

	w := env.request(t, "GET", "/api/service-prices", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Prices []model.ServicePrice `json:"prices"`
		Rates  store.Rates          `json:"rates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Prices, 1)
	assert.Equal(t, int64(3800), resp.Rates.Electricity)
	assert.False(t, resp.Rates.ElectricityFallback)
	// Water has no configured rate; the fallback is reported as such.
	assert.True(t, resp.Rates.WaterFallback)
}
