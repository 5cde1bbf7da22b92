package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/models"
)

func TestStalenessThresholds(t *testing.T) {
	stage := models.StageDefinition{Key: "screening", WarningDays: models.IntPtr(14), CriticalDays: models.IntPtr(30)}

	tests := []struct {
		days      int
		want      models.Staleness
		wantStale bool
	}{
		{days: 0, want: models.StalenessNone},
		{days: 13, want: models.StalenessNone},
		{days: 14, want: models.StalenessWarning, wantStale: true},
		{days: 29, want: models.StalenessWarning, wantStale: true},
		{days: 30, want: models.StalenessCritical, wantStale: true},
		{days: 400, want: models.StalenessCritical, wantStale: true},
	}
	for _, tt := range tests {
		state := models.DealStageState{
			StageEnteredAt: testNow.Add(-time.Duration(tt.days) * 24 * time.Hour),
			Status:         models.DealOpen,
		}
		got := ComputeDerived(state, stage, 1, nil, testNow)
		assert.Equal(t, tt.days, got.DaysInStage, "days %d", tt.days)
		assert.Equal(t, tt.want, got.Staleness, "days %d", tt.days)
		assert.Equal(t, tt.wantStale, got.IsStale, "days %d", tt.days)
	}
}

func TestStalenessWithoutThresholds(t *testing.T) {
	stage := models.StageDefinition{Key: "sourcing"}
	assert.Equal(t, models.StalenessNone, StalenessFor(stage, 10000))

	onlyCritical := models.StageDefinition{Key: "x", CriticalDays: models.IntPtr(5)}
	assert.Equal(t, models.StalenessNone, StalenessFor(onlyCritical, 4))
	assert.Equal(t, models.StalenessCritical, StalenessFor(onlyCritical, 5))
}

func TestDaysBetweenTruncates(t *testing.T) {
	since := testNow.Add(-(13*24 + 23) * time.Hour)
	assert.Equal(t, 13, DaysBetween(since, testNow))
	assert.Equal(t, 0, DaysBetween(testNow.Add(time.Hour), testNow))
}

func TestDefaultHealthScorer(t *testing.T) {
	stage := models.StageDefinition{Key: "s"}
	recent := testNow.Add(-48 * time.Hour)
	old := testNow.Add(-30 * 24 * time.Hour)

	tests := []struct {
		name     string
		state    models.DealStageState
		position int
		want     int
	}{
		{name: "first stage", state: models.DealStageState{Status: models.DealOpen}, position: 0, want: 53},
		{name: "progression bonus capped", state: models.DealStageState{Status: models.DealOpen}, position: 20, want: 80},
		{name: "recent activity", state: models.DealStageState{Status: models.DealOpen, LastActivityAt: &recent}, position: 0, want: 63},
		{name: "large deal", state: models.DealStageState{Status: models.DealOpen, Amount: 2_500_000}, position: 0, want: 63},
		{name: "million exactly", state: models.DealStageState{Status: models.DealOpen, Amount: 1_000_000}, position: 0, want: 53},
		{name: "old activity", state: models.DealStageState{Status: models.DealOpen, LastActivityAt: &old}, position: 0, want: 53},
		{name: "warning", state: models.DealStageState{Status: models.DealOpen, Staleness: models.StalenessWarning}, position: 2, want: 44},
		{name: "critical", state: models.DealStageState{Status: models.DealOpen, Staleness: models.StalenessCritical}, position: 2, want: 34},
		{name: "won", state: models.DealStageState{Status: models.DealClosedWon}, position: 5, want: 100},
		{name: "lost", state: models.DealStageState{Status: models.DealClosedLost}, position: 6, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultHealthScorer.Score(tt.state, stage, tt.position, testNow))
		})
	}
}

func TestComputeDerivedUsesInjectedScorer(t *testing.T) {
	fixed := HealthScorerFunc(func(models.DealStageState, models.StageDefinition, int, time.Time) int { return 42 })
	got := ComputeDerived(models.DealStageState{StageEnteredAt: testNow}, models.StageDefinition{}, 0, fixed, testNow)
	assert.Equal(t, 42, got.HealthScore)
}

func TestDealStateServiceLoad(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.putDeal("d1", "screening", 20)

	st, err := f.states.Load(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 20, st.DaysInStage)
	assert.Equal(t, models.StalenessWarning, st.Staleness)
	assert.True(t, st.IsStale)

	_, err = f.states.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDealNotFound)
}
