package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

// Source column names per import kind.
var columns = map[models.ImportKind]struct {
	age5To17, age17Plus, age0To5, age18Plus string
}{
	models.KindBiometric:   {age5To17: "bio_age_5_17", age17Plus: "bio_age_17_"},
	models.KindDemographic: {age5To17: "demo_age_5_17", age17Plus: "demo_age_17_"},
	models.KindEnrolment:   {age0To5: "age_0_5", age5To17: "age_5_17", age18Plus: "age_18_greater"},
}

var dateLayouts = []string{"02-01-2006", "2006-01-02", "02/01/2006", time.RFC3339}

type rowReader interface {
	Read() ([]string, error)
	Close() error
}

// RecordStream yields fact records one at a time and ends with io.EOF. It
// cannot be restarted.
type RecordStream struct {
	kind     models.ImportKind
	rows     rowReader
	header   map[string]int
	observed int
	skipped  int
	done     bool
}

func newRecordStream(kind models.ImportKind, rows rowReader) (*RecordStream, error) {
	s := &RecordStream{kind: kind, rows: rows, header: make(map[string]int)}

	head, err := rows.Read()
	if errors.Is(err, io.EOF) {
		s.done = true
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for i, name := range head {
		name = strings.TrimPrefix(name, "\ufeff")
		s.header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"state", "district"} {
		if _, ok := s.header[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}

	return s, nil
}

// openStream picks the row format from the path extension.
func openStream(r io.ReadCloser, path string, kind models.ImportKind) (*RecordStream, error) {
	var rows rowReader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		xr, err := newXLSXRows(r)
		if err != nil {
			return nil, err
		}
		rows = xr
	default:
		rows = newCSVRows(r)
	}

	s, err := newRecordStream(kind, rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	return s, nil
}

func (s *RecordStream) Next() (models.FactRecord, error) {
	for !s.done {
		row, err := s.rows.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return models.FactRecord{}, fmt.Errorf("failed to read row %d: %w", s.observed+1, err)
		}

		s.observed++
		rec := s.mapRow(row)
		if rec.State == "" || rec.District == "" {
			s.skipped++
			continue
		}
		return rec, nil
	}
	return models.FactRecord{}, io.EOF
}

// Observed is the number of data rows read so far, skipped rows included.
func (s *RecordStream) Observed() int { return s.observed }

func (s *RecordStream) Skipped() int { return s.skipped }

func (s *RecordStream) Close() error {
	return s.rows.Close()
}

func (s *RecordStream) field(row []string, name string) string {
	if name == "" {
		return ""
	}
	i, ok := s.header[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (s *RecordStream) mapRow(row []string) models.FactRecord {
	cols := columns[s.kind]
	return models.FactRecord{
		Kind:      s.kind,
		Date:      parseDate(s.field(row, "date")),
		State:     s.field(row, "state"),
		District:  s.field(row, "district"),
		Pincode:   int(parseCount(s.field(row, "pincode"))),
		Age0To5:   parseCount(s.field(row, cols.age0To5)),
		Age5To17:  parseCount(s.field(row, cols.age5To17)),
		Age17Plus: parseCount(s.field(row, cols.age17Plus)),
		Age18Plus: parseCount(s.field(row, cols.age18Plus)),
	}
}

// parseCount reads a leading integer; anything unparseable counts as 0.
func parseCount(v string) int64 {
	if v == "" {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseDate(v string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

type csvRows struct {
	r      *csv.Reader
	closer io.Closer
}

func newCSVRows(rc io.ReadCloser) *csvRows {
	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.ReuseRecord = true
	return &csvRows{r: r, closer: rc}
}

func (c *csvRows) Read() ([]string, error) { return c.r.Read() }
func (c *csvRows) Close() error            { return c.closer.Close() }

// xlsxRows reads the first sheet of a workbook.
type xlsxRows struct {
	file   *excelize.File
	rows   *excelize.Rows
	closer io.Closer
}

func newXLSXRows(rc io.ReadCloser) (*xlsxRows, error) {
	f, err := excelize.OpenReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		rc.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		rc.Close()
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return &xlsxRows{file: f, rows: rows, closer: rc}, nil
}

func (x *xlsxRows) Read() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return x.rows.Columns()
}

func (x *xlsxRows) Close() error {
	x.rows.Close()
	x.file.Close()
	return x.closer.Close()
}
