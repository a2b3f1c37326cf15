package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"r53gate/internal/metrics"
	"r53gate/internal/model"
)

// ErrBadHeader is returned when the CSV header lacks a required column.
var ErrBadHeader = errors.New("csv header must include name, type and value columns")

// RecordChanger submits one record change to the provider.
type RecordChanger interface {
	ChangeRecord(ctx context.Context, zoneID string, req model.RecordChangeRequest) (*model.ChangeResponse, error)
}

// Importer turns CSV rows into CREATE changes. Rows are submitted by a bounded
// pool of workers while parsing continues; results keep input order and
// Import returns only after every submitted row has finished.
type Importer struct {
	changer RecordChanger
	workers int
	log     *slog.Logger
}

func NewImporter(changer RecordChanger, workers int, logger *slog.Logger) *Importer {
	if workers < 1 {
		workers = 1
	}
	return &Importer{changer: changer, workers: workers, log: logger}
}

// Import reads r as CSV with a header row naming the name, type, ttl and value
// columns (ttl optional, any order). Per-row failures are reported in the
// results; a returned error means the stream itself could not be read.
func (im *Importer) Import(ctx context.Context, zoneID string, r io.Reader) ([]model.ImportResult, error) {
	if zoneID == "" {
		return nil, ErrMissingZoneID
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []model.ImportResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(im.workers)

	// Each worker writes only its own slot; the slice of pointers is only
	// appended to by this goroutine.
	var slots []*model.ImportResult
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("read csv row %d: %w", len(slots)+1, err)
		}

		line, _ := cr.FieldPos(0)
		row := cols.row(rec, line)
		slot := &model.ImportResult{Row: len(slots) + 1, Name: row.Name}
		slots = append(slots, slot)

		g.Go(func() error {
			im.submit(ctx, zoneID, row, slot)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]model.ImportResult, len(slots))
	for i, slot := range slots {
		results[i] = *slot
	}
	return results, nil
}

func (im *Importer) submit(ctx context.Context, zoneID string, row model.ImportRow, slot *model.ImportResult) {
	req, err := changeFromRow(row)
	if err != nil {
		slot.Error = fmt.Sprintf("Failed to create DNS record for %s: %v", row.Name, err)
		metrics.RecordImportRow("failed")
		return
	}

	resp, err := im.changer.ChangeRecord(ctx, zoneID, req)
	if err != nil {
		im.log.Warn("bulk upload row failed", "zone_id", zoneID, "line", row.Line, "name", row.Name, "error", err)
		slot.Error = fmt.Sprintf("Failed to create DNS record for %s", row.Name)
		metrics.RecordImportRow("failed")
		return
	}
	slot.ChangeInfo = &resp.ChangeInfo
	metrics.RecordImportRow("created")
}

func changeFromRow(row model.ImportRow) (model.RecordChangeRequest, error) {
	if row.Name == "" || row.Type == "" || row.Value == "" {
		return model.RecordChangeRequest{}, errors.New("name, type and value are required")
	}

	ttl := model.DefaultTTL
	if row.TTL != "" {
		v, err := strconv.ParseInt(row.TTL, 10, 64)
		if err != nil || v <= 0 {
			return model.RecordChangeRequest{}, fmt.Errorf("invalid ttl %q", row.TTL)
		}
		ttl = v
	}

	return model.RecordChangeRequest{
		Action: model.ActionCreate,
		Name:   row.Name,
		Type:   strings.ToUpper(row.Type),
		TTL:    ttl,
		Values: []string{row.Value},
	}, nil
}

type columns struct {
	name, typ, ttl, value int
}

func parseHeader(header []string) (columns, error) {
	cols := columns{name: -1, typ: -1, ttl: -1, value: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch h {
		case "name":
			cols.name = i
		case "type":
			cols.typ = i
		case "ttl":
			cols.ttl = i
		case "value":
			cols.value = i
		}
	}
	if cols.name < 0 || cols.typ < 0 || cols.value < 0 {
		return cols, ErrBadHeader
	}
	return cols, nil
}

func (c columns) row(rec []string, line int) model.ImportRow {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	return model.ImportRow{
		Line:  line,
		Name:  field(c.name),
		Type:  field(c.typ),
		TTL:   field(c.ttl),
		Value: field(c.value),
	}
}
