package store

import (
	"context"

	"github.com/nhle/steam-trading-notice/internal/model"
)

// Store defines the persistence interface for the delivery history.
type Store interface {
	// RecordDelivery stores one delivery attempt, assigning an ID and a
	// timestamp when they are empty.
	RecordDelivery(ctx context.Context, d model.Delivery) (model.Delivery, error)

	// RecentDeliveries returns up to limit deliveries, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error)

	// LastSuccessful returns the newest sent delivery, or nil.
	LastSuccessful(ctx context.Context) (*model.Delivery, error)

	Close() error
}
