package export

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

const defaultPageSize = 30

// Source serves parsed export records in pages. The cursor is the decimal
// offset of the next record.
type Source struct {
	records  []migrate.RawRecord
	pageSize int
}

// NewSource wraps already parsed records.
func NewSource(records []migrate.RawRecord, pageSize int) *Source {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Source{records: records, pageSize: pageSize}
}

// Open parses the export file at path.
func Open(path string, pageSize int) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := Parse(f, "text/html")
	if err != nil {
		return nil, err
	}
	return NewSource(records, pageSize), nil
}

// Len returns the number of records in the export.
func (s *Source) Len() int { return len(s.records) }

// ListSavedItems implements migrate.Source.
func (s *Source) ListSavedItems(ctx context.Context, cursor string) (migrate.Page, error) {
	if err := ctx.Err(); err != nil {
		return migrate.Page{}, fmt.Errorf("list export items: %w", err)
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(s.records) {
			return migrate.Page{}, &migrate.FatalFetchError{Op: "list export items", Err: fmt.Errorf("invalid cursor %q", cursor)}
		}
		offset = n
	}
	end := min(offset+s.pageSize, len(s.records))
	page := migrate.Page{
		Records: append([]migrate.RawRecord(nil), s.records[offset:end]...),
		HasNext: end < len(s.records),
	}
	if page.HasNext {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

// GetSavedItem implements migrate.ItemSource using the 1-based record id.
func (s *Source) GetSavedItem(_ context.Context, id string) (migrate.RawRecord, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return migrate.RawRecord{}, &migrate.FatalFetchError{Op: "get export item", Err: fmt.Errorf("item %q not found", id)}
}
