package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-billing-backend/config"
	"dorm-billing-backend/internal/billing"
	"dorm-billing-backend/internal/model"
)

// Store defines the interface for all billing database operations.
type Store interface {
	DB() *gorm.DB

	// ActiveRates returns the unit price per service active at the given
	// time. A missing tariff row or a failed lookup is absorbed: the
	// configured fallback default is substituted (and logged), never an
	// error, so meter-reading entry is never blocked on tariff data.
	ActiveRates(ctx context.Context, at time.Time) Rates

	// ListServicePrices returns the tariff rows active at the given time.
	ListServicePrices(ctx context.Context, at time.Time) ([]model.ServicePrice, error)

	// FindPriorUsage returns the room's chronologically most recent usage
	// strictly before the period, or ErrNotFound when no prior reading exists.
	FindPriorUsage(ctx context.Context, roomID int64, p billing.Period) (*model.MonthlyUsage, error)

	// RecordUsage resolves old indices and unit prices, computes the billed
	// amount, persists the MonthlyUsage and creates (or refreshes) the linked
	// utility invoice, all in one transaction.
	RecordUsage(ctx context.Context, in RecordUsageInput) (*model.MonthlyUsage, *model.Invoice, error)

	// TransitionInvoice applies a role-gated lifecycle transition to the
	// invoice with the given code using a conditional update, so two
	// concurrent transitions can never both win.
	TransitionInvoice(ctx context.Context, code string, role billing.Role, to model.InvoiceStatus, now time.Time) (*model.Invoice, error)

	// UsageStatus produces the manager's recorded/pending dashboard for a
	// period, optionally filtered to one building. Read-only.
	UsageStatus(ctx context.Context, p billing.Period, buildingID *int64, now time.Time) ([]UsageStatusRow, error)

	ListInvoicesByStudent(ctx context.Context, studentID int64, now time.Time) ([]InvoiceRow, error)
	ListInvoicesByBuilding(ctx context.Context, buildingID int64, p *billing.Period, now time.Time) ([]InvoiceRow, error)

	// OverdueInvoices returns unpaid invoices whose due date has passed.
	OverdueInvoices(ctx context.Context, now time.Time) ([]model.Invoice, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db      *gorm.DB
	billing config.BillingConfig
	logger  *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, billingCfg config.BillingConfig, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gormStore{db: db, billing: billingCfg, logger: logger}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) ListServicePrices(ctx context.Context, at time.Time) ([]model.ServicePrice, error) {
	var prices []model.ServicePrice
	err := s.db.WithContext(ctx).
		Where("effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)", at, at).
		Order("service_name").
		Find(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list service prices: %w", err)
	}
	return prices, nil
}

func (s *gormStore) ActiveRates(ctx context.Context, at time.Time) Rates {
	rates := Rates{
		Electricity:         s.billing.FallbackElectricityPrice,
		Water:               s.billing.FallbackWaterPrice,
		ElectricityFallback: true,
		WaterFallback:       true,
	}

	prices, err := s.ListServicePrices(ctx, at)
	if err != nil {
		s.logger.Warn("tariff lookup failed, billing at fallback rates",
			zap.Error(err),
			zap.Int64("electricity", rates.Electricity),
			zap.Int64("water", rates.Water))
		return rates
	}

	for _, p := range prices {
		switch p.ServiceName {
		case model.ServiceElectricity:
			rates.Electricity = p.UnitPrice
			rates.ElectricityFallback = false
		case model.ServiceWater:
			rates.Water = p.UnitPrice
			rates.WaterFallback = false
		}
	}

	if rates.ElectricityFallback {
		s.logger.Warn("no active electricity tariff, billing at fallback rate",
			zap.Int64("unit_price", rates.Electricity), zap.Time("at", at))
	}
	if rates.WaterFallback {
		s.logger.Warn("no active water tariff, billing at fallback rate",
			zap.Int64("unit_price", rates.Water), zap.Time("at", at))
	}
	return rates
}

func (s *gormStore) FindPriorUsage(ctx context.Context, roomID int64, p billing.Period) (*model.MonthlyUsage, error) {
	return findPriorUsage(s.db.WithContext(ctx), roomID, p)
}

// findPriorUsage resolves the carry-forward baseline: among the room's usages
// with (year, month) strictly before p, the one with the maximum (year, month).
func findPriorUsage(tx *gorm.DB, roomID int64, p billing.Period) (*model.MonthlyUsage, error) {
	var usage model.MonthlyUsage
	err := tx.
		Where("room_id = ? AND (year < ? OR (year = ? AND month < ?))", roomID, p.Year, p.Year, p.Month).
		Order("year DESC, month DESC").
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no usage before %s for room %d: %w", p, roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("prior usage lookup for room %d: %w", roomID, err)
	}
	return &usage, nil
}

func (s *gormStore) RecordUsage(ctx context.Context, in RecordUsageInput) (*model.MonthlyUsage, *model.Invoice, error) {
	if err := in.Period.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if in.ElectricityNewIndex < 0 || in.WaterNewIndex < 0 {
		return nil, nil, fmt.Errorf("meter indices must be non-negative: %w", ErrValidation)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var room model.Room
	if err := s.db.WithContext(ctx).First(&room, in.RoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("room %d: %w", in.RoomID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("room lookup: %w", err)
	}

	rates := s.ActiveRates(ctx, now)

	var (
		usage   model.MonthlyUsage
		invoice model.Invoice
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Resolve the carry-forward baseline; a room with no prior reading
		// starts from zero.
		var oldElectricity, oldWater int64
		prior, err := findPriorUsage(tx, in.RoomID, in.Period)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prior != nil {
			oldElectricity = prior.ElectricityNewIndex
			oldWater = prior.WaterNewIndex
		}

		if in.ElectricityNewIndex < oldElectricity {
			return fmt.Errorf("electricity index %d below prior index %d for room %d period %s: %w",
				in.ElectricityNewIndex, oldElectricity, in.RoomID, in.Period, ErrValidation)
		}
		if in.WaterNewIndex < oldWater {
			return fmt.Errorf("water index %d below prior index %d for room %d period %s: %w",
				in.WaterNewIndex, oldWater, in.RoomID, in.Period, ErrValidation)
		}

		electricity := billing.ComputeUsage(oldElectricity, in.ElectricityNewIndex, rates.Electricity)
		water := billing.ComputeUsage(oldWater, in.WaterNewIndex, rates.Water)
		total := electricity.Amount + water.Amount

		// Upsert by period: at most one row per (room, month, year). The row
		// may be replaced while its invoice is still UNPAID; once the payment
		// flow has started the amount is immutable and the write is refused.
		var existing model.MonthlyUsage
		err = tx.Where("room_id = ? AND month = ? AND year = ?", in.RoomID, in.Period.Month, in.Period.Year).
			First(&existing).Error
		switch {
		case err == nil:
			var linked model.Invoice
			invErr := tx.Where("usage_id = ?", existing.ID).First(&linked).Error
			if invErr != nil && !errors.Is(invErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("linked invoice lookup: %w", invErr)
			}
			if invErr == nil && linked.Status != model.InvoiceStatusUnpaid {
				return fmt.Errorf("usage for room %d period %s already invoiced with status %s: %w",
					in.RoomID, in.Period, linked.Status, ErrConflict)
			}

			existing.ElectricityOldIndex = oldElectricity
			existing.ElectricityNewIndex = in.ElectricityNewIndex
			existing.ElectricityPrice = rates.Electricity
			existing.WaterOldIndex = oldWater
			existing.WaterNewIndex = in.WaterNewIndex
			existing.WaterPrice = rates.Water
			existing.TotalAmount = total
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("failed to update usage for room %d period %s: %w", in.RoomID, in.Period, err)
			}
			usage = existing

			if invErr == nil {
				linked.Amount = total
				if err := tx.Save(&linked).Error; err != nil {
					return fmt.Errorf("failed to update invoice %s: %w", linked.InvoiceCode, err)
				}
				invoice = linked
				return nil
			}

		case errors.Is(err, gorm.ErrRecordNotFound):
			usage = model.MonthlyUsage{
				RoomID:              in.RoomID,
				Month:               in.Period.Month,
				Year:                in.Period.Year,
				ElectricityOldIndex: oldElectricity,
				ElectricityNewIndex: in.ElectricityNewIndex,
				ElectricityPrice:    rates.Electricity,
				WaterOldIndex:       oldWater,
				WaterNewIndex:       in.WaterNewIndex,
				WaterPrice:          rates.Water,
				TotalAmount:         total,
				CreatedAt:           now,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return fmt.Errorf("failed to create usage for room %d period %s: %w", in.RoomID, in.Period, err)
			}

		default:
			return fmt.Errorf("usage lookup for room %d period %s: %w", in.RoomID, in.Period, err)
		}

		invoice = model.Invoice{
			InvoiceCode:  newInvoiceCode(model.InvoiceTypeUtilityFee, in.Period),
			RoomID:       in.RoomID,
			UsageID:      &usage.ID,
			Type:         model.InvoiceTypeUtilityFee,
			Status:       model.InvoiceStatusUnpaid,
			Amount:       total,
			DueDate:      now.AddDate(0, 0, s.billing.DueDays),
			TimeInvoiced: now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("failed to create invoice for room %d period %s: %w", in.RoomID, in.Period, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("usage recorded",
		zap.Int64("room_id", in.RoomID),
		zap.String("period", in.Period.String()),
		zap.Int64("total_amount", usage.TotalAmount),
		zap.String("invoice_code", invoice.InvoiceCode))
	return &usage, &invoice, nil
}

func (s *gormStore) TransitionInvoice(ctx context.Context, code string, role billing.Role, to model.InvoiceStatus, now time.Time) (*model.Invoice, error) {
	if !billing.ValidStatus(to) {
		return nil, fmt.Errorf("unknown invoice status %q: %w", to, ErrValidation)
	}

	var inv model.Invoice
	if err := s.db.WithContext(ctx).Where("invoice_code = ?", code).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("invoice lookup %s: %w", code, err)
	}

	if err := billing.CheckTransition(role, inv.Status, to); err != nil {
		if !billing.CanTransition(inv.Status, to) {
			return nil, fmt.Errorf("invoice %s: %v: %w", code, err, ErrValidation)
		}
		return nil, fmt.Errorf("invoice %s: %v: %w", code, err, ErrForbidden)
	}

	// Compare-and-swap on the status column: a concurrent transition that
	// already moved the invoice makes this update match zero rows.
	updates := map[string]any{"status": to, "updated_at": now}
	if to == model.InvoiceStatusPaid {
		updates["paid_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("invoice_code = ? AND status = ?", code, inv.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("invoice transition %s: %w", code, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("invoice %s was modified concurrently: %w", code, ErrConflict)
	}

	if err := s.db.WithContext(ctx).Where("invoice_code = ?", code).First(&inv).Error; err != nil {
		return nil, fmt.Errorf("invoice reload %s: %w", code, err)
	}

	s.logger.Info("invoice transitioned",
		zap.String("invoice_code", code),
		zap.String("status", string(inv.Status)),
		zap.String("role", string(role)))
	return &inv, nil
}

func (s *gormStore) UsageStatus(ctx context.Context, p billing.Period, buildingID *int64, now time.Time) ([]UsageStatusRow, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}

	q := s.db.WithContext(ctx).Model(&model.Room{}).
		Select("rooms.*").
		Joins("JOIN buildings ON buildings.id = rooms.building_id").
		Order("buildings.name, rooms.number").
		Preload("Building")
	if buildingID != nil {
		q = q.Where("rooms.building_id = ?", *buildingID)
	}

	var rooms []model.Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(rooms) == 0 {
		return []UsageStatusRow{}, nil
	}

	roomIDs := make([]int64, len(rooms))
	for i, r := range rooms {
		roomIDs[i] = r.ID
	}

	// The period's recorded usages, one per room at most.
	var usages []model.MonthlyUsage
	if err := s.db.WithContext(ctx).
		Where("room_id IN ? AND month = ? AND year = ?", roomIDs, p.Month, p.Year).
		Find(&usages).Error; err != nil {
		return nil, fmt.Errorf("failed to list usages for %s: %w", p, err)
	}
	usageByRoom := make(map[int64]model.MonthlyUsage, len(usages))
	usageIDs := make([]int64, 0, len(usages))
	for _, u := range usages {
		usageByRoom[u.RoomID] = u
		usageIDs = append(usageIDs, u.ID)
	}

	// Carry-forward baselines: every usage strictly before the period, newest
	// first, then keep the first row seen per room.
	var priors []model.MonthlyUsage
	if err := s.db.WithContext(ctx).
		Where("room_id IN ? AND (year < ? OR (year = ? AND month < ?))", roomIDs, p.Year, p.Year, p.Month).
		Order("year DESC, month DESC").
		Find(&priors).Error; err != nil {
		return nil, fmt.Errorf("failed to list prior usages: %w", err)
	}
	priorByRoom := make(map[int64]model.MonthlyUsage)
	for _, u := range priors {
		if _, seen := priorByRoom[u.RoomID]; !seen {
			priorByRoom[u.RoomID] = u
		}
	}

	invoiceByUsage := make(map[int64]model.Invoice)
	if len(usageIDs) > 0 {
		var invoices []model.Invoice
		if err := s.db.WithContext(ctx).
			Where("usage_id IN ?", usageIDs).
			Find(&invoices).Error; err != nil {
			return nil, fmt.Errorf("failed to list invoices: %w", err)
		}
		for _, inv := range invoices {
			if inv.UsageID != nil {
				invoiceByUsage[*inv.UsageID] = inv
			}
		}
	}

	rows := make([]UsageStatusRow, 0, len(rooms))
	for _, room := range rooms {
		row := UsageStatusRow{
			RoomID:       room.ID,
			RoomNumber:   room.Number,
			Floor:        room.Floor,
			BuildingID:   room.BuildingID,
			BuildingName: room.Building.Name,
		}

		if prior, ok := priorByRoom[room.ID]; ok {
			e, w := prior.ElectricityNewIndex, prior.WaterNewIndex
			row.PriorElectricityIndex = &e
			row.PriorWaterIndex = &w
		}

		if u, ok := usageByRoom[room.ID]; ok {
			usage := u
			row.Recorded = true
			row.Usage = &usage
			if inv, ok := invoiceByUsage[u.ID]; ok {
				row.InvoiceCode = inv.InvoiceCode
				row.InvoiceType = string(inv.Type)
				row.InvoiceStatus = DisplayStatus(&inv, now)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *gormStore) ListInvoicesByStudent(ctx context.Context, studentID int64, now time.Time) ([]InvoiceRow, error) {
	var student model.Student
	if err := s.db.WithContext(ctx).First(&student, studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("student %d: %w", studentID, ErrNotFound)
		}
		return nil, fmt.Errorf("student lookup: %w", err)
	}
	if student.RoomID == nil {
		return []InvoiceRow{}, nil
	}

	var invoices []model.Invoice
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", *student.RoomID).
		Order("time_invoiced DESC").
		Preload("Usage").
		Preload("Room").
		Preload("Room.Building").
		Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices for student %d: %w", studentID, err)
	}
	return invoiceRows(invoices, now), nil
}

func (s *gormStore) ListInvoicesByBuilding(ctx context.Context, buildingID int64, p *billing.Period, now time.Time) ([]InvoiceRow, error) {
	q := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Select("invoices.*").
		Joins("JOIN rooms ON rooms.id = invoices.room_id").
		Where("rooms.building_id = ?", buildingID).
		Order("rooms.number, invoices.time_invoiced DESC").
		Preload("Usage").
		Preload("Room").
		Preload("Room.Building")
	if p != nil {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
		q = q.Joins("JOIN monthly_usages ON monthly_usages.id = invoices.usage_id").
			Where("monthly_usages.month = ? AND monthly_usages.year = ?", p.Month, p.Year)
	}

	var invoices []model.Invoice
	if err := q.Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices for building %d: %w", buildingID, err)
	}
	return invoiceRows(invoices, now), nil
}

func (s *gormStore) OverdueInvoices(ctx context.Context, now time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := s.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", model.InvoiceStatusUnpaid, now).
		Preload("Room").
		Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	return invoices, nil
}

func invoiceRows(invoices []model.Invoice, now time.Time) []InvoiceRow {
	rows := make([]InvoiceRow, 0, len(invoices))
	for _, inv := range invoices {
		row := InvoiceRow{
			InvoiceCode:  inv.InvoiceCode,
			Type:         string(inv.Type),
			Status:       DisplayStatus(&inv, now),
			Amount:       inv.Amount,
			DueDate:      inv.DueDate,
			TimeInvoiced: inv.TimeInvoiced,
			PaidAt:       inv.PaidAt,
			RoomID:       inv.RoomID,
			RoomNumber:   inv.Room.Number,
			BuildingID:   inv.Room.BuildingID,
			BuildingName: inv.Room.Building.Name,
		}
		if inv.Usage != nil {
			m, y := inv.Usage.Month, inv.Usage.Year
			row.Month = &m
			row.Year = &y
		}
		rows = append(rows, row)
	}
	return rows
}

// newInvoiceCode builds a human-readable invoice code like
// INV-UTL-202405-9F1C03AB.
func newInvoiceCode(t model.InvoiceType, p billing.Period) string {
	prefix := "UTL"
	if t == model.InvoiceTypeRoomFee {
		prefix = "ROOM"
	}
	short := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("INV-%s-%d%02d-%s", prefix, p.Year, p.Month, short)
}
