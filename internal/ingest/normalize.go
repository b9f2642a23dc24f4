package ingest

import (
	"encoding/json"
	"time"

	"github.com/cam3ron2/commit-stats/internal/table"
)

// SkipReason explains why a raw record produced no row.
type SkipReason string

const (
	// SkipNone means the record was kept.
	SkipNone SkipReason = ""
	// SkipMalformed means the record is not a JSON object.
	SkipMalformed SkipReason = "malformed"
	// SkipNoAuthor means commit or commit.author is absent or null.
	SkipNoAuthor SkipReason = "no_author"
	// SkipBadDate means commit.author.date is absent or not an RFC 3339 timestamp.
	SkipBadDate SkipReason = "bad_date"
)

type commitRecord struct {
	Commit *struct {
		Author *struct {
			Name  *string          `json:"name"`
			Email *string          `json:"email"`
			Date  *json.RawMessage `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// Normalize extracts author name, email and date from one raw commit record.
func Normalize(raw json.RawMessage) (table.Row, SkipReason) {
	var record commitRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return table.Row{}, SkipMalformed
	}
	if record.Commit == nil || record.Commit.Author == nil {
		return table.Row{}, SkipNoAuthor
	}
	author := record.Commit.Author

	date, ok := parseDate(author.Date)
	if !ok {
		return table.Row{}, SkipBadDate
	}

	row := table.Row{Date: date}
	if author.Name != nil {
		row.Name = *author.Name
	}
	if author.Email != nil {
		row.Email = *author.Email
	}
	return row, SkipNone
}

func parseDate(raw *json.RawMessage) (time.Time, bool) {
	if raw == nil {
		return time.Time{}, false
	}
	var value string
	if err := json.Unmarshal(*raw, &value); err != nil {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
