package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
)

func TestComputeFactorCounts_InvalidFactor(t *testing.T) {
	svc := NewFactorService(&fakeCrashRepository{}, testLogger, testMetrics)

	_, err := svc.ComputeFactorCounts(context.Background(), "vehicle_colour", nil)
	require.Error(t, err)

	var invalidErr *models.InvalidFactorError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "Invalid factor: vehicle_colour", err.Error())
}

func TestComputeFactorCounts_MergesAndOrders(t *testing.T) {
	// Raw sex values in mixed case across two severities. "m" and "M" must
	// merge into one category, "U" must be excluded, and M sorts before F
	// regardless of counts.
	repo := &fakeCrashRepository{
		factorCounts: []repository.RawFactorCount{
			{RawValue: strPtr("F"), Severity: "Serious injury accident", Count: 2},
			{RawValue: strPtr("m"), Severity: "Other injury accident", Count: 1},
			{RawValue: strPtr("M"), Severity: "Other injury accident", Count: 2},
			{RawValue: strPtr("U"), Severity: "Other injury accident", Count: 7},
			{RawValue: nil, Severity: "Other injury accident", Count: 5},
		},
	}
	svc := NewFactorService(repo, testLogger, testMetrics)

	rows, err := svc.ComputeFactorCounts(context.Background(), models.FactorSex, nil)
	require.NoError(t, err)

	require.Equal(t, []models.FactorCountRow{
		{Category: "M", Severity: models.SeverityInjury, Count: 3},
		{Category: "F", Severity: models.SeveritySeriousInjury, Count: 2},
	}, rows)
}

func TestComputeFactorCounts_DropsNonCountableSeverities(t *testing.T) {
	repo := &fakeCrashRepository{
		factorCounts: []repository.RawFactorCount{
			{RawValue: strPtr("Day"), Severity: "Fatal accident", Count: 4},
			{RawValue: strPtr("Day"), Severity: "Other injury accident", Count: 6},
		},
	}
	svc := NewFactorService(repo, testLogger, testMetrics)

	rows, err := svc.ComputeFactorCounts(context.Background(), models.FactorLightCondition, nil)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "Day", rows[0].Category)
	assert.Equal(t, models.SeverityInjury, rows[0].Severity)
	assert.Equal(t, int64(6), rows[0].Count)
}

func TestComputeFactorCounts_SeveritySecondaryOrder(t *testing.T) {
	// Within one category, Injury sorts before SeriousInjury.
	repo := &fakeCrashRepository{
		factorCounts: []repository.RawFactorCount{
			{RawValue: strPtr("14"), Severity: "Serious injury accident", Count: 3},
			{RawValue: strPtr("15"), Severity: "Other injury accident", Count: 9},
			{RawValue: strPtr("3"), Severity: "Other injury accident", Count: 1},
		},
	}
	svc := NewFactorService(repo, testLogger, testMetrics)

	rows, err := svc.ComputeFactorCounts(context.Background(), models.FactorTimeBucket, nil)
	require.NoError(t, err)

	require.Equal(t, []models.FactorCountRow{
		{Category: "Late Night", Severity: models.SeverityInjury, Count: 1},
		{Category: "Afternoon", Severity: models.SeverityInjury, Count: 9},
		{Category: "Afternoon", Severity: models.SeveritySeriousInjury, Count: 3},
	}, rows)
}

func TestComputeFactorCounts_PassesScopeThrough(t *testing.T) {
	repo := &fakeCrashRepository{}
	svc := NewFactorService(repo, testLogger, testMetrics)

	scope := &repository.AreaScope{Level: "sa3", Name: "Geelong"}
	rows, err := svc.ComputeFactorCounts(context.Background(), models.FactorSpeedZone, scope)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NotNil(t, repo.lastScope)
	assert.Equal(t, "sa3", repo.lastScope.Level)
	assert.Equal(t, "Geelong", repo.lastScope.Name)
	require.NotNil(t, repo.lastSpec)
	assert.Equal(t, models.FactorSpeedZone, repo.lastSpec.ID)
}
