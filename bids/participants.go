package bids

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Participant holds one row of a participants.tsv file, keyed by column name.
// Missing cells and the BIDS "n/a" marker are stored as empty strings.
type Participant map[string]string

// ReadParticipants parses a BIDS participants.tsv file.
func ReadParticipants(path string) ([]Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open participants.tsv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1 // tolerate ragged rows, missing cells become ""

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse participants.tsv")
	}
	if len(records) == 0 {
		return nil, errors.New("participants.tsv is empty")
	}

	header := records[0]
	var participants []Participant
	for _, rec := range records[1:] {
		p := make(Participant, len(header))
		for i, col := range header {
			var val string
			if i < len(rec) {
				val = rec[i]
			}
			if val == "n/a" {
				val = ""
			}
			p[col] = val
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// String returns the value for a column, or "" when absent.
func (p Participant) String(col string) string {
	return p[col]
}

// Float parses a column as float32. The ok result is false when the cell is
// missing, "n/a" or not a number, so callers can log and keep the row.
func (p Participant) Float(col string) (val float32, ok bool) {
	s := p[col]
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}
