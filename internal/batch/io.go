package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/parquet-go"
)

// Reader yields dataset records until io.EOF. A *RowError reports a row
// that could not be parsed; reading may continue after it.
type Reader interface {
	Read() (*Record, error)
	Close() error
}

// Writer writes masked records in input order
type Writer interface {
	Write(rec *Record) error
	Close() error
}

// RowError is a malformed input row
type RowError struct {
	Row int64
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// headered is implemented by readers whose rows share a header
type headered interface {
	Header() []string
}

// csvRow keeps every column so the row can be written back unchanged
// except for the text column.
type csvRow struct {
	fields  []string
	textIdx int
}

type csvReader struct {
	r       *csv.Reader
	header  []string
	textIdx int
	idIdx   int
	row     int64
}

// NewCSVReader reads a CSV dataset with a header row. The text column is
// required; the ID column is optional.
func NewCSVReader(r io.Reader, config *Config) (Reader, error) {
	config = config.withDefaults()

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	reader.FieldsPerRecord = len(header)

	c := &csvReader{r: reader, header: header, textIdx: -1, idIdx: -1}
	for i, col := range header {
		col = strings.TrimSpace(col)
		switch {
		case strings.EqualFold(col, config.TextField):
			c.textIdx = i
		case strings.EqualFold(col, config.IDField):
			c.idIdx = i
		}
	}
	if c.textIdx < 0 {
		return nil, fmt.Errorf("CSV header has no %q column", config.TextField)
	}
	return c, nil
}

func (c *csvReader) Header() []string { return c.header }

func (c *csvReader) Read() (*Record, error) {
	fields, err := c.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	c.row++
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &RowError{Row: c.row, Err: err}
		}
		return nil, err
	}

	rec := &Record{
		Row:  c.row,
		Text: fields[c.textIdx],
		row:  csvRow{fields: fields, textIdx: c.textIdx},
	}
	if c.idIdx >= 0 {
		rec.ID = fields[c.idIdx]
	}
	return rec, nil
}

func (c *csvReader) Close() error { return nil }

type csvWriter struct {
	w       *csv.Writer
	header  []string
	written bool
}

// NewCSVWriter writes CSV rows. header is written first and defaults to
// "id,text". Rows read from CSV keep their columns; other records are
// written as id and text.
func NewCSVWriter(w io.Writer, header []string) Writer {
	return &csvWriter{w: csv.NewWriter(w), header: header}
}

func (c *csvWriter) writeHeader() error {
	if c.written {
		return nil
	}
	c.written = true
	if c.header == nil {
		c.header = []string{"id", "text"}
	}
	return c.w.Write(c.header)
}

func (c *csvWriter) Write(rec *Record) error {
	fields := []string{rec.ID, rec.Text}
	if row, ok := rec.row.(csvRow); ok {
		fields = append([]string(nil), row.fields...)
		fields[row.textIdx] = rec.Text
	}
	if err := c.writeHeader(); err != nil {
		return err
	}
	return c.w.Write(fields)
}

func (c *csvWriter) Close() error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

type jsonReader struct {
	scanner   *bufio.Scanner
	textField string
	idField   string
	row       int64
}

// NewJSONReader reads one JSON object per line. Blank lines are skipped.
func NewJSONReader(r io.Reader, config *Config) Reader {
	config = config.withDefaults()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &jsonReader{scanner: scanner, textField: config.TextField, idField: config.IDField}
}

func (j *jsonReader) Read() (*Record, error) {
	for j.scanner.Scan() {
		j.row++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var obj map[string]any
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, &RowError{Row: j.row, Err: err}
		}

		text, ok := obj[j.textField].(string)
		if !ok {
			return nil, &RowError{Row: j.row, Err: fmt.Errorf("field %q is missing or not a string", j.textField)}
		}

		rec := &Record{Row: j.row, Text: text, row: obj}
		if id, ok := obj[j.idField]; ok && id != nil {
			rec.ID = fmt.Sprint(id)
		}
		return rec, nil
	}
	if err := j.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (j *jsonReader) Close() error { return nil }

type jsonWriter struct {
	enc       *json.Encoder
	textField string
	idField   string
}

// NewJSONWriter writes one JSON object per line
func NewJSONWriter(w io.Writer, config *Config) Writer {
	config = config.withDefaults()
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonWriter{enc: enc, textField: config.TextField, idField: config.IDField}
}

func (j *jsonWriter) Write(rec *Record) error {
	obj, ok := rec.row.(map[string]any)
	if !ok {
		obj = map[string]any{j.idField: rec.ID}
	}
	obj[j.textField] = rec.Text
	return j.enc.Encode(obj)
}

func (j *jsonWriter) Close() error { return nil }

// parquetRow is the fixed schema of Parquet datasets
type parquetRow struct {
	ID   string `parquet:"id,optional"`
	Text string `parquet:"text"`
}

type parquetReader struct {
	r   *parquet.Reader
	row int64
}

// NewParquetReader reads a Parquet file with "id" and "text" columns
func NewParquetReader(r io.ReaderAt, size int64) (Reader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	return &parquetReader{r: parquet.NewReader(file)}, nil
}

func (p *parquetReader) Read() (*Record, error) {
	var row parquetRow
	if err := p.r.Read(&row); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	p.row++
	return &Record{Row: p.row, ID: row.ID, Text: row.Text}, nil
}

func (p *parquetReader) Close() error { return p.r.Close() }

type parquetWriter struct {
	w *parquet.Writer
}

// NewParquetWriter writes rows with "id" and "text" columns
func NewParquetWriter(w io.Writer) Writer {
	return &parquetWriter{w: parquet.NewWriter(w, parquet.SchemaOf(new(parquetRow)))}
}

func (p *parquetWriter) Write(rec *Record) error {
	return p.w.Write(&parquetRow{ID: rec.ID, Text: rec.Text})
}

func (p *parquetWriter) Close() error { return p.w.Close() }
