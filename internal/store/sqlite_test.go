package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/store"
	"github.com/nhle/steam-trading-notice/tests/testutil"
)

func TestRecordAndListDeliveries(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	first, err := s.RecordDelivery(ctx, model.Delivery{
		Kind:            model.DeliveryKindTest,
		Subject:         "STN test",
		Recipients:      []string{"a@example.com"},
		Status:          model.DeliveryStatusSent,
		ScreenshotBytes: 1234,
		CreatedAt:       base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.RecordDelivery(ctx, model.Delivery{
		Kind:      model.DeliveryKindScheduled,
		Subject:   "STN report",
		Status:    model.DeliveryStatusFailed,
		Error:     "declared response size exceeded",
		CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	deliveries, err := s.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)

	assert.Equal(t, model.DeliveryStatusFailed, deliveries[0].Status)
	assert.Equal(t, "declared response size exceeded", deliveries[0].Error)
	assert.Empty(t, deliveries[0].Recipients)

	assert.Equal(t, first.ID, deliveries[1].ID)
	assert.Equal(t, []string{"a@example.com"}, deliveries[1].Recipients)
	assert.Equal(t, 1234, deliveries[1].ScreenshotBytes)
	assert.True(t, base.Equal(deliveries[1].CreatedAt))
}

func TestLastSuccessful(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	last, err := s.LastSuccessful(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	sent, err := s.RecordDelivery(ctx, model.Delivery{
		Kind:    model.DeliveryKindManual,
		Subject: "ok",
		Status:  model.DeliveryStatusSent,
	})
	require.NoError(t, err)
	_, err = s.RecordDelivery(ctx, model.Delivery{
		Kind:      model.DeliveryKindManual,
		Subject:   "later failure",
		Status:    model.DeliveryStatusFailed,
		CreatedAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	last, err = s.LastSuccessful(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, sent.ID, last.ID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stn.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.RecordDelivery(context.Background(), model.Delivery{
		Kind: model.DeliveryKindTest, Subject: "x", Status: model.DeliveryStatusSent,
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	deliveries, err := s.RecentDeliveries(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}
