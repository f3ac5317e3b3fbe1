package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "dorm-billing-backend/internal/db"
	"dorm-billing-backend/internal/model"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbpkg.Migrate(gormDB))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return gormDB
}

func seedSubscribedRoom(t *testing.T, gormDB *gorm.DB, endpoint string) model.Room {
	t.Helper()

	building := model.Building{Name: "A1"}
	require.NoError(t, gormDB.Create(&building).Error)
	room := model.Room{BuildingID: building.ID, Number: "312", Floor: 3}
	require.NoError(t, gormDB.Create(&room).Error)

	subscription := model.PushSubscription{
		Endpoint: endpoint,
		P256DH:   "test_p256dh",
		Auth:     "test_auth",
		Rooms:    []*model.Room{&room},
	}
	require.NoError(t, gormDB.Create(&subscription).Error)
	return room
}

func TestWorkerPoolDispatch(t *testing.T) {
	gormDB := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, nil)

	wp.Dispatch(Event{Kind: EventInvoiceIssued, RoomID: 123, InvoiceCode: "INV-UTL-202405-AAAA0001"})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, int64(123), job.RoomID)
		assert.Equal(t, EventInvoiceIssued, job.Kind)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

// Dispatch must never block a request handler: with the queue full, events
// are dropped.
func TestWorkerPoolDispatchFullQueue(t *testing.T) {
	gormDB := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, nil)

	done := make(chan struct{})
	go func() {
		wp.Dispatch(Event{RoomID: 1})
		wp.Dispatch(Event{RoomID: 2}) // dropped, queue size is 1
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	assert.Len(t, wp.Jobs(), 1)
}

func TestWorkerPoolDelivery(t *testing.T) {
	gormDB := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	room := seedSubscribedRoom(t, gormDB, "https://example.com/push")

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Contains(t, string(payload), "312")
				assert.Contains(t, string(payload), "INV-UTL-202405-AAAA0001")
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		wp.Dispatch(Event{
			Kind:        EventInvoiceIssued,
			RoomID:      room.ID,
			InvoiceCode: "INV-UTL-202405-AAAA0001",
			Amount:      175000,
		})
		wg.Wait()
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		wp.Dispatch(Event{Kind: EventInvoiceOverdue, RoomID: room.ID, InvoiceCode: "INV-UTL-202405-AAAA0001"})

		assert.Eventually(t, func() bool {
			var count int64
			gormDB.Model(&model.PushSubscription{}).Count(&count)
			return count == 0
		}, 2*time.Second, 50*time.Millisecond, "expired subscription should be deleted")
	})
}
