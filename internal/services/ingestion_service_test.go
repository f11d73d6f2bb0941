package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAccidents_SkipsBadRows(t *testing.T) {
	csv := `ACCIDENT_NO,ACCIDENT_DATE,ACCIDENT_TIME,SEVERITY,SPEED_ZONE,LIGHT_CONDITION,ROAD_GEOMETRY,INJ_OR_FATAL,SERIOUSINJURY,LONGITUDE,LATITUDE
T001,2023-01-15,14:30:00,Serious injury accident,60 km/hr,Day,Cross intersection,2,1,144.9631,-37.8136
T002,not-a-date,10:00:00,Other injury accident,50 km/hr,Day,Not at intersection,1,0,144.9,-37.8
T003,2023-02-01,,Other injury accident,,,,1,0,145.1,-37.7
`
	path := writeCSV(t, "accident.csv", csv)

	repo := &fakeCrashRepository{}
	svc := NewIngestionService(repo, testLogger, testMetrics)

	result, err := svc.IngestAccidents(context.Background(), path, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 2, result.SuccessfulRecords)
	assert.Equal(t, 1, result.FailedRecords)

	require.Len(t, repo.accidents, 2)
	assert.Equal(t, "T001", repo.accidents[0].AccidentNo)
	assert.Equal(t, "T003", repo.accidents[1].AccidentNo)
	assert.Nil(t, repo.accidents[1].AccidentTime)
}

func TestIngestAccidents_MissingColumn(t *testing.T) {
	path := writeCSV(t, "accident.csv", "ACCIDENT_NO,SEVERITY\nT001,Other injury accident\n")

	svc := NewIngestionService(&fakeCrashRepository{}, testLogger, testMetrics)

	_, err := svc.IngestAccidents(context.Background(), path, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column")
}

func TestIngestPersons_BatchesAndSkips(t *testing.T) {
	csv := `ACCIDENT_NO,SEX,AGE_GROUP,HELMET_BELT_WORN,ROAD_USER_TYPE_DESC,TAKEN_HOSPITAL
T001,M,30-39,1,Drivers,Y
T001,F,26-29,1,Passengers,N
,M,40-49,2,Drivers,N
T002,F,70+,,Pedestrians,Y
`
	path := writeCSV(t, "person.csv", csv)

	repo := &fakeCrashRepository{}
	svc := NewIngestionService(repo, testLogger, testMetrics)

	result, err := svc.IngestPersons(context.Background(), path, 2)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalRecords)
	assert.Equal(t, 3, result.SuccessfulRecords)
	assert.Equal(t, 1, result.FailedRecords)

	require.Len(t, repo.persons, 3)
	assert.Equal(t, "T001", repo.persons[0].AccidentNo)
	require.NotNil(t, repo.persons[0].Sex)
	assert.Equal(t, "M", *repo.persons[0].Sex)
	// Empty restraint code stays NULL.
	assert.Nil(t, repo.persons[2].HelmetBeltWorn)
}
