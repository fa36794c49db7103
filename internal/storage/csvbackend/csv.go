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

	"github.com/FranksOps/partscout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// columns defines the CSV column order.
var columns = []string{
	"id",
	"vendor",
	"operation",
	"method",
	"url",
	"status",
	"duration_ms",
	"bytes",
	"detected_bot",
	"detection_src",
	"error",
	"created_at",
}

// New opens a CSV audit file, writing the header row when the file is new.
// The file opens cleanly in a spreadsheet for ad-hoc review of vendor
// traffic.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}
	if info.Size() == 0 {
		if err := writeRecord(f, columns); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &csvBackend{file: f}, nil
}

func writeRecord(w io.Writer, record []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush: %w", err)
	}
	return nil
}

func (b *csvBackend) Save(ctx context.Context, e *storage.Exchange) error {
	record := []string{
		e.ID,
		e.Vendor,
		e.Operation,
		e.Method,
		e.URL,
		strconv.Itoa(e.Status),
		strconv.FormatInt(e.Duration.Milliseconds(), 10),
		strconv.FormatInt(e.Bytes, 10),
		strconv.FormatBool(e.DetectedBot),
		e.DetectionSrc,
		e.Error,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return writeRecord(b.file, record)
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Exchange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Exchange{}, nil
		}
		return nil, fmt.Errorf("csvbackend: header: %w", err)
	}

	matched := []*storage.Exchange{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}
		e, ok := parseRecord(record)
		if !ok {
			continue
		}
		if filter.Match(e) {
			matched = append(matched, e)
		}
	}
	return storage.Page(matched, filter), nil
}

// parseRecord rejects rows with the wrong width or an unreadable timestamp.
func parseRecord(record []string) (*storage.Exchange, bool) {
	if len(record) != len(columns) {
		return nil, false
	}
	createdAt, err := time.Parse(time.RFC3339Nano, record[11])
	if err != nil {
		return nil, false
	}
	status, _ := strconv.Atoi(record[5])
	durationMs, _ := strconv.ParseInt(record[6], 10, 64)
	size, _ := strconv.ParseInt(record[7], 10, 64)
	detected, _ := strconv.ParseBool(record[8])
	return &storage.Exchange{
		ID:           record[0],
		Vendor:       record[1],
		Operation:    record[2],
		Method:       record[3],
		URL:          record[4],
		Status:       status,
		Duration:     time.Duration(durationMs) * time.Millisecond,
		Bytes:        size,
		DetectedBot:  detected,
		DetectionSrc: record[9],
		Error:        record[10],
		CreatedAt:    createdAt,
	}, true
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
