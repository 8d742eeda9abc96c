// Package report renders the failure report and hands it to a blob store.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

const contentType = "text/csv; charset=utf-8"

// Header is the first row of every report.
var Header = []string{"URL", "Title", "Tags", "Timestamp", "Reason"}

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Writer implements migrate.ReportWriter on top of a BlobStore.
type Writer struct {
	store BlobStore
}

// NewWriter creates a Writer.
func NewWriter(store BlobStore) *Writer {
	return &Writer{store: store}
}

// WriteReport renders failures as CSV and stores them under name.
func (w *Writer) WriteReport(ctx context.Context, name string, failures []migrate.FailureRecord) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, failures); err != nil {
		return "", err
	}
	uri, err := w.store.PutObject(ctx, name, contentType, &buf)
	if err != nil {
		return "", fmt.Errorf("store report %s: %w", name, err)
	}
	return uri, nil
}

// Render writes the header and one row per failure.
func Render(out io.Writer, failures []migrate.FailureRecord) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, f := range failures {
		row := []string{f.URL, f.Title, f.Tags, strconv.FormatInt(f.Timestamp, 10), f.Reason}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
