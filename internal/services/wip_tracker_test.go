package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWipTrackerCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	f.putDeal("d1", "screening", 1)

	occ, err := f.wip.GetOccupancy(ctx, "screening")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.DealCount)

	f.putDeal("d2", "screening", 1)
	occ, err = f.wip.GetOccupancy(ctx, "screening")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.DealCount, "served from cache")

	live, err := f.wip.LiveCount(ctx, "screening")
	require.NoError(t, err)
	assert.Equal(t, 2, live)

	f.wip.Invalidate("screening")
	occ, err = f.wip.GetOccupancy(ctx, "screening")
	require.NoError(t, err)
	assert.Equal(t, 2, occ.DealCount)
	assert.True(t, occ.AtLimit())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.StageOccupancy.WithLabelValues("screening")))

	_, err = f.wip.GetOccupancy(ctx, "nope")
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestWipTrackerUtilization(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	f.putDeal("d1", "screening", 1)

	occ, err := f.wip.Refresh(ctx, "screening")
	require.NoError(t, err)
	require.NotNil(t, occ.UtilizationPercent)
	assert.Equal(t, 50.0, *occ.UtilizationPercent)

	noLimit, err := f.wip.Refresh(ctx, "sourcing")
	require.NoError(t, err)
	assert.Nil(t, noLimit.WipLimit)
	assert.Nil(t, noLimit.UtilizationPercent)
}

func TestSnapshotForRounding(t *testing.T) {
	st, err := newEngineFixture(t, nil).catalog.GetStage("screening")
	require.NoError(t, err)
	limit := 3
	st.WipLimit = &limit
	snap := snapshotFor(st, 2)
	require.NotNil(t, snap.UtilizationPercent)
	assert.Equal(t, 66.7, *snap.UtilizationPercent)
}

func TestWipTrackerSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	f.putDeal("d1", "screening", 1)
	f.putDeal("d2", "closing", 1)
	f.putDeal("d3", "closing", 1)

	snap, err := f.wip.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, len(testStages()))
	assert.Equal(t, "sourcing", snap[0].StageKey)
	assert.Equal(t, 0, snap[0].DealCount)
	assert.Equal(t, 1, snap[1].DealCount)
	assert.Equal(t, 2, snap[4].DealCount)

	// snapshot warms the cache
	f.putDeal("d4", "closing", 1)
	occ, err := f.wip.GetOccupancy(ctx, "closing")
	require.NoError(t, err)
	assert.Equal(t, 2, occ.DealCount)
}
