// Package export serializes disclosure records to CSV and JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// csvHeader is the fixed column order consumers depend on.
var csvHeader = []string{
	"username", "price_per_point", "total_cost", "points", "resort",
	"use_year", "points_details", "sent_date",
	"result", "result_date",
	"thread_url", "raw_entry",
}

// WriteCSV writes entries as CSV with the fixed header. Dates are
// YYYY-MM-DD; an absent total cost or result date is an empty field.
func WriteCSV(w io.Writer, entries []model.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range entries {
		if err := cw.Write(csvRecord(&entries[i])); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRecord(e *model.Entry) []string {
	totalCost := ""
	if e.TotalCost > 0 {
		totalCost = strconv.FormatFloat(e.TotalCost, 'f', -1, 64)
	}
	resultDate := ""
	if e.ResultDate != nil {
		resultDate = e.ResultDate.Format(model.DateLayout)
	}
	return []string{
		e.Username,
		strconv.FormatFloat(e.PricePerPoint, 'f', -1, 64),
		totalCost,
		strconv.Itoa(e.Points),
		e.Resort,
		e.UseYear,
		e.PointsDetails,
		e.SentDate.Format(model.DateLayout),
		string(e.Result),
		resultDate,
		e.ThreadURL,
		e.RawEntry,
	}
}

type jsonEntry struct {
	model.Entry
	SentDate   string `json:"sent_date"`
	ResultDate string `json:"result_date,omitempty"`
}

type jsonDocument struct {
	Metadata struct {
		Count       int    `json:"count"`
		GeneratedAt string `json:"generated_at"`
	} `json:"metadata"`
	Entries []jsonEntry `json:"entries"`
}

// WriteJSON writes entries wrapped in a metadata header with the record
// count and generation time.
func WriteJSON(w io.Writer, entries []model.Entry, now time.Time) error {
	doc := jsonDocument{Entries: make([]jsonEntry, 0, len(entries))}
	doc.Metadata.Count = len(entries)
	doc.Metadata.GeneratedAt = now.UTC().Format(time.RFC3339)

	for _, e := range entries {
		je := jsonEntry{Entry: e, SentDate: e.SentDate.Format(model.DateLayout)}
		if e.ResultDate != nil {
			je.ResultDate = e.ResultDate.Format(model.DateLayout)
		}
		doc.Entries = append(doc.Entries, je)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
