package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/suykerbuyk/evolve/internal/ledger"
)

// HistoryRow is one ledger event as exported by `evo history --csv`.
type HistoryRow struct {
	Level               int    `csv:"level"`
	CommitID            string `csv:"commit_id"`
	CommitDate          string `csv:"commit_date"`
	CommitMessage       string `csv:"commit_message"`
	Source              string `csv:"source"`
	PreviousDescription string `csv:"previous_description"`
	NewDescription      string `csv:"new_description"`
}

// Rows converts ledger events to export rows.
func Rows(events []ledger.Event) []HistoryRow {
	rows := make([]HistoryRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, HistoryRow{
			Level:               e.Level,
			CommitID:            e.CommitID,
			CommitDate:          e.CommitDate.UTC().Format(time.RFC3339),
			CommitMessage:       e.CommitMessage,
			Source:              e.Source,
			PreviousDescription: e.PreviousDescription,
			NewDescription:      e.NewDescription,
		})
	}
	return rows
}

// WriteCSV writes events with a header row to w.
func WriteCSV(w io.Writer, events []ledger.Event) error {
	rows := Rows(events)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write history csv: %w", err)
	}
	return nil
}
