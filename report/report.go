// Package report folds raw response records into the owner-facing views:
// a rendered column set, per-field rating statistics and a flat export
// table. Everything here is pure; the same survey and responses always
// produce the same output.
package report

import (
	"sort"
	"strconv"

	"github.com/feedpulse/feedpulse/model"
)

// SubmittedColumn is the trailing column appended to every export table.
const SubmittedColumn = "Submitted"

// Placeholder fills cells with no recorded answer.
const Placeholder = "-"

const submittedAtFormat = "2006-01-02"

// BuildColumnSet returns the column labels in render/export order. The
// survey's own field order is authoritative; for legacy surveys stored
// without fields it falls back to the key set of the first response, sorted,
// which is an explicitly weaker ordering guarantee.
func BuildColumnSet(sv model.Survey, responses []model.ResponseRecord) []string {
	if len(sv.Fields) > 0 {
		columns := make([]string, len(sv.Fields))
		for i, f := range sv.Fields {
			columns[i] = f.Label
		}
		return columns
	}

	if len(responses) == 0 {
		return nil
	}
	columns := make([]string, 0, len(responses[0].ResponseData))
	for label := range responses[0].ResponseData {
		columns = append(columns, label)
	}
	sort.Strings(columns)
	return columns
}

// Statistics aggregates rating answers. Overall is the mean over the union
// of every parseable numeric value from every rating column across every
// response — not a mean of per-column means. Available is false when no
// numeric value exists at all.
type Statistics struct {
	PerField      map[string]float64 `json:"perField"`
	Overall       float64            `json:"overall"`
	Available     bool               `json:"available"`
	ResponseCount int                `json:"responseCount"`
}

func ComputeStatistics(sv model.Survey, responses []model.ResponseRecord) Statistics {
	stats := Statistics{
		PerField:      map[string]float64{},
		ResponseCount: len(responses),
	}

	var totalSum float64
	var totalCount int
	for _, label := range sv.RatingLabels() {
		var sum float64
		var count int
		for _, rec := range responses {
			value, ok := rec.ResponseData[label]
			if !ok {
				continue
			}
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				// non-numeric answers are excluded, not counted as zero
				continue
			}
			sum += n
			count++
		}
		if count > 0 {
			stats.PerField[label] = sum / float64(count)
			totalSum += sum
			totalCount += count
		}
	}

	if totalCount > 0 {
		stats.Overall = totalSum / float64(totalCount)
		stats.Available = true
	}
	return stats
}

// Row maps column label to display value; Table.Columns defines the order.
type Row map[string]string

type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// BuildExportTable renders one row per response in column-set order, with a
// trailing Submitted column holding the formatted submission date. Missing
// answers become the placeholder. Answer values pass through unchanged.
func BuildExportTable(sv model.Survey, responses []model.ResponseRecord) Table {
	columns := BuildColumnSet(sv, responses)

	table := Table{
		Columns: append(append([]string{}, columns...), SubmittedColumn),
		Rows:    make([]Row, 0, len(responses)),
	}
	for _, rec := range responses {
		row := Row{}
		for _, col := range columns {
			value, ok := rec.ResponseData[col]
			if !ok || value == "" {
				value = Placeholder
			}
			row[col] = value
		}
		if rec.SubmittedAt.IsZero() {
			row[SubmittedColumn] = Placeholder
		} else {
			row[SubmittedColumn] = rec.SubmittedAt.Format(submittedAtFormat)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
