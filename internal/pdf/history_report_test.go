package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/models"
)

func sampleReport() HistoryReport {
	from := "screening"
	reason := "management call went well and the seller is ready to share the data room"
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return HistoryReport{
		Deal: models.DealStageState{
			DealID:          "deal-1",
			Name:            "Acme Holdings",
			CurrentStageKey: "due_diligence",
			DaysInStage:     3,
			Probability:     70,
			Status:          models.DealOpen,
			Amount:          1250000,
		},
		Records: []models.TransitionRecord{
			{ID: "h1", DealID: "deal-1", ToStageKey: "screening", ChangedBy: "alice", ChangedAt: at.AddDate(0, 0, -10)},
			{ID: "h2", DealID: "deal-1", FromStageKey: &from, ToStageKey: "due_diligence", ChangedBy: "alice",
				ChangedAt: at.AddDate(0, 0, -3), Reason: &reason, OverrodeWarning: true},
		},
		GeneratedAt: at,
		StageName: func(key string) string {
			return map[string]string{"screening": "Screening", "due_diligence": "Due Diligence"}[key]
		},
	}
}

func TestRenderTransitionHistory(t *testing.T) {
	g := NewReportGenerator(t.TempDir(), "")

	out, err := g.RenderTransitionHistory(sampleReport())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-"), "output is a PDF document")
}

func TestRenderEmptyHistory(t *testing.T) {
	g := NewReportGenerator(t.TempDir(), filepath.Join(t.TempDir(), "missing.ttf"))
	data := sampleReport()
	data.Records = nil
	data.StageName = nil

	out, err := g.RenderTransitionHistory(data)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestSaveTransitionHistory(t *testing.T) {
	dir := t.TempDir()
	g := NewReportGenerator(filepath.Join(dir, "reports"), "")

	path, err := g.SaveTransitionHistory(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "/stage_history_deal-1.pdf", path)

	info, err := os.Stat(filepath.Join(dir, "reports", "stage_history_deal-1.pdf"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSavedReport(t *testing.T) {
	g := NewReportGenerator(t.TempDir(), "")
	path, err := g.SaveTransitionHistory(sampleReport())
	require.NoError(t, err)

	abs, err := g.SavedReport(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.RootDir, "stage_history_deal-1.pdf"), abs)

	abs, err = g.SavedReport("../../etc/stage_history_deal-1.pdf")
	require.NoError(t, err, "only the base name is looked up")
	assert.Equal(t, filepath.Join(g.RootDir, "stage_history_deal-1.pdf"), abs)

	_, err = g.SavedReport("stage_history_other.pdf")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = g.SavedReport("notes.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFlags(t *testing.T) {
	assert.Equal(t, "", flags(models.TransitionRecord{}))
	assert.Equal(t, "back", flags(models.TransitionRecord{Regression: true}))
	assert.Equal(t, "override, back", flags(models.TransitionRecord{Regression: true, OverrodeWarning: true}))
}
