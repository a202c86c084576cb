package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/model"
)

func ratingSurvey(labels ...string) model.Survey {
	sv := model.Survey{ID: "s1", DisplayName: "Lecture 3", SessionDate: "2024-05-01"}
	for _, label := range labels {
		sv.Fields = append(sv.Fields, model.FieldSpec{Label: label, Type: model.FieldTypeRating})
	}
	return sv
}

func TestBuildColumnSetFollowsFieldOrder(t *testing.T) {
	sv := model.Survey{Fields: []model.FieldSpec{
		{Label: "Zeta", Type: model.FieldTypeRating},
		{Label: "Alpha", Type: "text"},
		{Label: "Mid", Type: model.FieldTypeRating},
	}}

	columns := BuildColumnSet(sv, nil)
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, columns)
}

func TestBuildColumnSetLegacyFallback(t *testing.T) {
	// a legacy survey stored without field definitions
	sv := model.Survey{Title: "Old | 2023-01-01"}
	responses := []model.ResponseRecord{
		{ResponseData: map[string]string{"b": "2", "a": "1", "c": "3"}},
		{ResponseData: map[string]string{"only-first-counts": "x"}},
	}

	columns := BuildColumnSet(sv, responses)
	assert.Equal(t, []string{"a", "b", "c"}, columns)

	assert.Nil(t, BuildColumnSet(sv, nil))
}

func TestComputeStatisticsUnionMean(t *testing.T) {
	sv := ratingSurvey("Clarity", "Pace")
	responses := []model.ResponseRecord{
		{ResponseData: map[string]string{"Clarity": "5", "Pace": "3"}},
		{ResponseData: map[string]string{"Clarity": "4"}},
		{ResponseData: map[string]string{"Pace": "2"}},
	}

	stats := ComputeStatistics(sv, responses)
	require.True(t, stats.Available)
	assert.Equal(t, 3, stats.ResponseCount)
	assert.InDelta(t, 4.5, stats.PerField["Clarity"], 1e-9)
	assert.InDelta(t, 2.5, stats.PerField["Pace"], 1e-9)

	// overall is the mean over all four values, not of the two field means
	assert.InDelta(t, 3.5, stats.Overall, 1e-9)
}

func TestComputeStatisticsSkipsNonNumeric(t *testing.T) {
	sv := ratingSurvey("Clarity")
	responses := []model.ResponseRecord{
		{ResponseData: map[string]string{"Clarity": "great"}},
		{ResponseData: map[string]string{"Clarity": "4"}},
	}

	stats := ComputeStatistics(sv, responses)
	require.True(t, stats.Available)
	// "great" is excluded, not counted as zero
	assert.InDelta(t, 4.0, stats.PerField["Clarity"], 1e-9)
	assert.InDelta(t, 4.0, stats.Overall, 1e-9)
}

func TestComputeStatisticsUnavailable(t *testing.T) {
	sv := ratingSurvey("Clarity")
	responses := []model.ResponseRecord{
		{ResponseData: map[string]string{"Clarity": "n/a"}},
	}

	stats := ComputeStatistics(sv, responses)
	assert.False(t, stats.Available)
	assert.Zero(t, stats.Overall)
	assert.Empty(t, stats.PerField)
	assert.Equal(t, 1, stats.ResponseCount)
}

func TestBuildExportTable(t *testing.T) {
	sv := model.Survey{
		DisplayName: "Lecture 3",
		SessionDate: "2024-05-01",
		Fields: []model.FieldSpec{
			{Label: "Clarity", Type: model.FieldTypeRating},
			{Label: "Comments", Type: "text"},
		},
	}
	responses := []model.ResponseRecord{
		{
			ResponseData: map[string]string{"Clarity": "5", "Comments": "great"},
			SubmittedAt:  time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
		},
		{
			ResponseData: map[string]string{"Clarity": "1"},
		},
	}

	table := BuildExportTable(sv, responses)
	assert.Equal(t, []string{"Clarity", "Comments", "Submitted"}, table.Columns)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, Row{"Clarity": "5", "Comments": "great", "Submitted": "2024-05-02"}, table.Rows[0])
	// missing answer and missing timestamp become the placeholder
	assert.Equal(t, Row{"Clarity": "1", "Comments": "-", "Submitted": "-"}, table.Rows[1])
}

func TestWriteCSV(t *testing.T) {
	table := Table{
		Columns: []string{"Clarity", "Submitted"},
		Rows: []Row{
			{"Clarity": "5", "Submitted": "2024-05-02"},
			{"Clarity": "-", "Submitted": "-"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(table, &buf))

	assert.Equal(t, "Clarity,Submitted\n5,2024-05-02\n-,-\n", buf.String())
}

func TestWriteXLSXProducesWorkbook(t *testing.T) {
	table := Table{
		Columns: []string{"Clarity", "Submitted"},
		Rows:    []Row{{"Clarity": "5", "Submitted": "2024-05-02"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(table, &buf))
	// xlsx files are zip archives
	assert.Equal(t, "PK", buf.String()[:2])
}
