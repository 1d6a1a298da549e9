package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/tests/testutil"
)

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	_, err := st.RecordDelivery(ctx, model.Delivery{
		Kind:       model.DeliveryKindTest,
		Subject:    "first",
		Recipients: []string{"a@example.com"},
		Status:     model.DeliveryStatusSent,
		CreatedAt:  base,
	})
	require.NoError(t, err)
	_, err = st.RecordDelivery(ctx, model.Delivery{
		Kind:      model.DeliveryKindScheduled,
		Subject:   "second",
		Status:    model.DeliveryStatusFailed,
		Error:     "relay down",
		CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, PrintHistory(ctx, &out, st, 10))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "second")
	assert.Contains(t, lines[0], "error=relay down")
	assert.Contains(t, lines[1], "first")
	assert.Contains(t, lines[1], "to=a@example.com")

	out.Reset()
	require.NoError(t, PrintHistory(ctx, &out, st, 1))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestPrintHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PrintHistory(context.Background(), &out, testutil.NewTestStore(t), 10))
	assert.Equal(t, "no deliveries recorded\n", out.String())
}
