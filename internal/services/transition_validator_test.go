package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/models"
)

func TestValidateTransition(t *testing.T) {
	stages := testStages()
	stages[0].NextStages = []string{"screening"}
	catalog, err := NewStageCatalog(stages, nil, quietLogger())
	require.NoError(t, err)

	tests := []struct {
		name         string
		in           ValidationInput
		wantAllowed  bool
		wantReason   ValidationReason
		wantExceeded bool
		wantWarnings int
	}{
		{
			name:       "unknown stage",
			in:         ValidationInput{FromStageKey: "sourcing", ToStageKey: "nowhere"},
			wantReason: ReasonStageNotFound,
		},
		{
			name:       "same stage",
			in:         ValidationInput{FromStageKey: "analysis", ToStageKey: "analysis"},
			wantReason: ReasonNoOp,
		},
		{
			name:       "wip full",
			in:         ValidationInput{FromStageKey: "analysis", ToStageKey: "due_diligence", Occupancy: 1},
			wantReason: ReasonWipLimitExceeded, wantExceeded: true,
		},
		{
			name:        "wip full with override",
			in:          ValidationInput{FromStageKey: "analysis", ToStageKey: "due_diligence", Occupancy: 1, Override: true},
			wantAllowed: true, wantExceeded: true, wantWarnings: 1,
		},
		{
			name:        "wip below limit",
			in:          ValidationInput{FromStageKey: "sourcing", ToStageKey: "screening", Occupancy: 1},
			wantAllowed: true,
		},
		{
			name:        "next stage",
			in:          ValidationInput{FromStageKey: "screening", ToStageKey: "analysis"},
			wantAllowed: true,
		},
		{
			name:        "skip forward",
			in:          ValidationInput{FromStageKey: "screening", ToStageKey: "closing"},
			wantAllowed: true, wantWarnings: 1,
		},
		{
			name:        "backwards",
			in:          ValidationInput{FromStageKey: "closing", ToStageKey: "analysis"},
			wantAllowed: true, wantWarnings: 1,
		},
		{
			name:        "off configured path and skipping",
			in:          ValidationInput{FromStageKey: "sourcing", ToStageKey: "analysis"},
			wantAllowed: true, wantWarnings: 2,
		},
		{
			name:        "lost from anywhere",
			in:          ValidationInput{FromStageKey: "sourcing", ToStageKey: "closed_lost"},
			wantAllowed: true,
		},
		{
			name:        "low health into due diligence",
			in:          ValidationInput{FromStageKey: "analysis", ToStageKey: "due_diligence", HealthScore: models.IntPtr(41)},
			wantAllowed: true, wantWarnings: 1,
		},
		{
			name:        "healthy into due diligence",
			in:          ValidationInput{FromStageKey: "analysis", ToStageKey: "due_diligence", HealthScore: models.IntPtr(50)},
			wantAllowed: true,
		},
		{
			name:        "low health outside gated stages",
			in:          ValidationInput{FromStageKey: "screening", ToStageKey: "analysis", HealthScore: models.IntPtr(10)},
			wantAllowed: true,
		},
		{
			name:        "deal without stage",
			in:          ValidationInput{FromStageKey: "", ToStageKey: "closing"},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateTransition(catalog, tt.in)
			assert.Equal(t, tt.wantAllowed, got.Allowed)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantExceeded, got.WipExceeded)
			assert.Len(t, got.Warnings, tt.wantWarnings, "warnings: %v", got.Warnings)
			if !tt.wantAllowed {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestValidateTransitionBackwardIntoLostStage(t *testing.T) {
	stages := append(testStages(), models.StageDefinition{Key: "unavailable", DisplayName: "Unavailable", SortOrder: 80})
	catalog, err := NewStageCatalog(stages, nil, quietLogger())
	require.NoError(t, err)

	got := ValidateTransition(catalog, ValidationInput{FromStageKey: "unavailable", ToStageKey: "closed_lost"})
	require.True(t, got.Allowed)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "moving backwards from Unavailable to Closed Lost")
}

func TestValidateTransitionSkipWarningNamesStages(t *testing.T) {
	catalog, err := NewStageCatalog(testStages(), nil, quietLogger())
	require.NoError(t, err)

	got := ValidateTransition(catalog, ValidationInput{FromStageKey: "sourcing", ToStageKey: "due_diligence"})
	require.True(t, got.Allowed)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "Screening, Analysis")
}

func TestValidationResultErr(t *testing.T) {
	catalog, err := NewStageCatalog(testStages(), nil, quietLogger())
	require.NoError(t, err)

	res := ValidateTransition(catalog, ValidationInput{FromStageKey: "analysis", ToStageKey: "due_diligence", Occupancy: 3})
	err = res.Err("due_diligence")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, ErrWipLimitExceeded)
	assert.NotErrorIs(t, err, ErrNoOp)
	assert.Equal(t, "WIP limit exceeded for due_diligence stage (3/1). Override required.", err.Error())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 3, verr.Count)
	require.NotNil(t, verr.Limit)
	assert.Equal(t, 1, *verr.Limit)

	ok := ValidateTransition(catalog, ValidationInput{FromStageKey: "sourcing", ToStageKey: "screening"})
	assert.NoError(t, ok.Err("screening"))

	noop := ValidateTransition(catalog, ValidationInput{FromStageKey: "sourcing", ToStageKey: "sourcing"})
	assert.ErrorIs(t, noop.Err("sourcing"), ErrNoOp)
}
