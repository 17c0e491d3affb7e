package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/codescout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// columns defines the CSV column order. Bodies and headers are not stored.
var columns = []string{
	"id",
	"stage",
	"url",
	"status_code",
	"bytes",
	"duration_ms",
	"outcome",
	"detected_bot",
	"detection_src",
	"created_at",
	"error",
}

// New creates a CSV-backed storage.Backend. A header row is written when the
// file is new or empty; otherwise rows are appended.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audit file: %w", err)
	}

	if info.Size() == 0 {
		if err := writeRow(f, columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, r *storage.FetchRecord) error {
	row := []string{
		r.ID,
		string(r.Stage),
		r.URL,
		strconv.Itoa(r.StatusCode),
		strconv.FormatInt(r.Bytes, 10),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		string(r.Outcome),
		strconv.FormatBool(r.DetectedBot),
		r.DetectionSrc,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek audit file: %w", err)
	}
	if err := writeRow(b.file, row); err != nil {
		return fmt.Errorf("write fetch record: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind audit file: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	cr := csv.NewReader(b.file)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.FetchRecord{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var matched []*storage.FetchRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fetch record: %w", err)
		}
		if len(row) != len(columns) {
			continue // skip malformed rows
		}

		r, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode fetch record %s: %w", row[0], err)
		}
		if filter.Match(r) {
			matched = append(matched, r)
		}
	}

	// Rows are in insertion order; newest first like the other backends.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	return storage.Paginate(matched, filter), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

func parseRow(row []string) (*storage.FetchRecord, error) {
	statusCode, err := strconv.Atoi(row[3])
	if err != nil {
		return nil, fmt.Errorf("status_code: %w", err)
	}
	n, err := strconv.ParseInt(row[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bytes: %w", err)
	}
	durationMs, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("duration_ms: %w", err)
	}
	detectedBot, err := strconv.ParseBool(row[7])
	if err != nil {
		return nil, fmt.Errorf("detected_bot: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, row[9])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}

	return &storage.FetchRecord{
		ID:           row[0],
		Stage:        storage.Stage(row[1]),
		URL:          row[2],
		StatusCode:   statusCode,
		Bytes:        n,
		Duration:     time.Duration(durationMs) * time.Millisecond,
		Outcome:      storage.Outcome(row[6]),
		DetectedBot:  detectedBot,
		DetectionSrc: row[8],
		CreatedAt:    createdAt,
		Error:        row[10],
	}, nil
}

func writeRow(w io.Writer, row []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
