package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
)

func TestYearlyTrend_OmitsEmptyYears(t *testing.T) {
	// The yearly trend reports observed years only; gaps stay gaps.
	repo := &fakeCrashRepository{
		yearlyTrend: []models.YearlyTrendItem{
			{Year: 2020, Crashes: 100, TotalInjuries: 120, SeriousInjuries: 30},
			{Year: 2022, Crashes: 90, TotalInjuries: 95, SeriousInjuries: 25},
		},
	}
	svc := NewTrendService(repo, testLogger, testMetrics)

	rows, err := svc.YearlyTrend(context.Background(), 2020, 2024)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, 2020, rows[0].Year)
	assert.Equal(t, 2022, rows[1].Year)
}

func TestMonthlyTrend_ZeroFillsTwelveMonths(t *testing.T) {
	repo := &fakeCrashRepository{
		monthlyCounts: []repository.MonthlyCount{
			{Month: 3, Crashes: 10, TotalInjuries: 12, SeriousInjuries: 4},
			{Month: 11, Crashes: 7, TotalInjuries: 8, SeriousInjuries: 1},
		},
	}
	svc := NewTrendService(repo, testLogger, testMetrics)

	resp, err := svc.MonthlyTrend(context.Background(), 2023)
	require.NoError(t, err)

	assert.Equal(t, 2023, resp.Year)
	require.Len(t, resp.Data, 12)

	for i, item := range resp.Data {
		assert.Equal(t, fmt.Sprintf("2023-%02d", i+1), item.Period)
	}

	// March and November carry data, everything else is zero.
	assert.Equal(t, int64(10), resp.Data[2].Crashes)
	assert.Equal(t, int64(4), resp.Data[2].SeriousInjuries)
	assert.Equal(t, int64(7), resp.Data[10].Crashes)
	for _, i := range []int{0, 1, 3, 4, 5, 6, 7, 8, 9, 11} {
		assert.Zerof(t, resp.Data[i].Crashes, "month %s should be zero-filled", resp.Data[i].Period)
	}
}

func TestMonthlyTrend_EmptyYear(t *testing.T) {
	svc := NewTrendService(&fakeCrashRepository{}, testLogger, testMetrics)

	resp, err := svc.MonthlyTrend(context.Background(), 1999)
	require.NoError(t, err)

	require.Len(t, resp.Data, 12)
	for _, item := range resp.Data {
		assert.Zero(t, item.Crashes)
		assert.Zero(t, item.TotalInjuries)
		assert.Zero(t, item.SeriousInjuries)
	}
}

func TestMaxAccidentDate(t *testing.T) {
	latest := time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC)
	repo := &fakeCrashRepository{maxDate: &latest}
	svc := NewTrendService(repo, testLogger, testMetrics)

	got, err := svc.MaxAccidentDate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(latest))
}
