package domain

import (
	"context"
	"time"
)

type BookingRepository interface {
	// Write paths
	SaveBooking(ctx context.Context, b BookingRecord) error
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// Read paths
	GetBooking(ctx context.Context, id string) (BookingRecord, error)
	ListUnsynced(ctx context.Context, limit int) ([]BookingRecord, error)
}

// BookingSink is the hosted backend that finally owns booking records.
type BookingSink interface {
	PushBooking(ctx context.Context, b BookingRecord) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	SetNX(ctx context.Context, key string, v any, ttlSec int) (bool, error)
	Del(ctx context.Context, key string) error
}
