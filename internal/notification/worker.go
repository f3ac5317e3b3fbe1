package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-billing-backend/internal/model"
)

// EventKind identifies the billing event a push notification announces.
type EventKind string

const (
	// EventInvoiceIssued fires when a meter reading is recorded and its
	// utility invoice is created or refreshed.
	EventInvoiceIssued EventKind = "invoice_issued"
	// EventInvoicePaid fires when a manager confirms payment.
	EventInvoicePaid EventKind = "invoice_paid"
	// EventInvoiceOverdue fires from the reminder loop for unpaid invoices
	// past their due date.
	EventInvoiceOverdue EventKind = "invoice_overdue"
)

// Event is one billing notification job for a room's subscribers.
type Event struct {
	Kind        EventKind
	RoomID      int64
	InvoiceCode string
	Amount      int64
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers delivering billing push notifications.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// SetSender replaces the delivery backend; tests use this to capture sends.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case event := <-wp.jobs:
			wp.notifyRoom(ctx, event)
		case <-ctx.Done():
			wp.logger.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a billing event for delivery. It never blocks a request
// handler: when the queue is full the event is dropped and logged.
func (wp *WorkerPool) Dispatch(event Event) {
	select {
	case wp.jobs <- event:
	default:
		wp.logger.Warn("notification queue full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.Int64("room_id", event.RoomID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// notifyRoom fetches the room's subscriptions and sends one push per
// subscriber.
func (wp *WorkerPool) notifyRoom(ctx context.Context, event Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_room_mapping srm ON srm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("srm.room_id = ?", event.RoomID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions",
			zap.Int64("room_id", event.RoomID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	var room model.Room
	roomLabel := fmt.Sprintf("%d", event.RoomID)
	if err := wp.db.WithContext(ctx).
		Select("number").
		First(&room, event.RoomID).Error; err != nil {
		wp.logger.Warn("failed to fetch room for notification",
			zap.Int64("room_id", event.RoomID), zap.Error(err))
	} else if room.Number != "" {
		roomLabel = room.Number
	}

	message := eventMessage(event, roomLabel)
	wp.logger.Info("sending notifications",
		zap.Int("count", len(subscriptions)),
		zap.Int64("room_id", event.RoomID),
		zap.String("kind", string(event.Kind)))
	for _, sub := range subscriptions {
		wp.sendNotification(sub, []byte(message))
	}
}

func eventMessage(event Event, roomLabel string) string {
	switch event.Kind {
	case EventInvoiceIssued:
		return fmt.Sprintf("Phòng %s: hóa đơn %s đã phát hành, số tiền %d đ.", roomLabel, event.InvoiceCode, event.Amount)
	case EventInvoicePaid:
		return fmt.Sprintf("Phòng %s: hóa đơn %s đã được xác nhận thanh toán.", roomLabel, event.InvoiceCode)
	case EventInvoiceOverdue:
		return fmt.Sprintf("Phòng %s: hóa đơn %s đã quá hạn thanh toán.", roomLabel, event.InvoiceCode)
	default:
		return fmt.Sprintf("Phòng %s: cập nhật hóa đơn %s.", roomLabel, event.InvoiceCode)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error("failed to send notification",
			zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// 404 and 410 mean the subscription is gone; clean it up.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		wp.logger.Info("removing expired subscription", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.Where("endpoint = ?", sub.Endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
			wp.logger.Error("failed to delete expired subscription",
				zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
