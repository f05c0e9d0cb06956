package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedFormat is returned by Decode for unrecognized file extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// delimiterSampleSize is how many leading bytes are inspected when sniffing
// the delimiter of a .txt file.
const delimiterSampleSize = 4096

// csvEncodings is the fallback chain for non-UTF-8 CSV input. CMS files are
// occasionally exported as latin-1 or cp1252.
var csvEncodings = []encoding.Encoding{charmap.ISO8859_1, charmap.Windows1252}

// Decode reads a file into a RawGrid. Cells are literal text: no header is
// stripped, blanks stay as empty strings, and nothing is coerced to a typed
// null. Malformed content degrades instead of failing; the only errors are a
// missing file, an unreadable file, or ErrUnsupportedFormat.
func Decode(path string) (RawGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return decodeCSV(data, ',')
	case ".txt":
		return decodeCSV(data, sniffDelimiter(data))
	case ".xlsx":
		return decodeXLSX(path)
	case ".xls":
		return decodeXLS(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// decodeCSV parses delimiter-separated text with the encoding fallback chain.
func decodeCSV(data []byte, delim rune) (RawGrid, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = decodeText(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid RawGrid
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line; keep whatever parsed and move on.
			if len(row) > 0 {
				grid = append(grid, row)
			}
			continue
		}
		grid = append(grid, row)
	}
	return grid, nil
}

// decodeText returns data as valid UTF-8, trying the configured single-byte
// encodings and finally substituting the replacement character byte-wise.
func decodeText(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	for _, enc := range csvEncodings {
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			return out
		}
	}
	return sanitizeUTF8(data)
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}

// sniffDelimiter counts candidate delimiters in the leading sample and picks
// the most frequent. Ties resolve tab, then pipe, then comma.
func sniffDelimiter(data []byte) rune {
	sample := data
	if len(sample) > delimiterSampleSize {
		sample = sample[:delimiterSampleSize]
	}

	tabs := bytes.Count(sample, []byte("\t"))
	commas := bytes.Count(sample, []byte(","))
	pipes := bytes.Count(sample, []byte("|"))

	switch {
	case tabs >= commas && tabs >= pipes:
		return '\t'
	case pipes >= commas:
		return '|'
	default:
		return ','
	}
}

// decodeXLSX reads the first sheet of a modern spreadsheet, raw cell values.
func decodeXLSX(path string) (RawGrid, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return RawGrid{}, nil
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return RawGrid(rows), nil
}

// decodeXLS reads the first sheet of a legacy spreadsheet.
func decodeXLS(path string) (RawGrid, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return RawGrid{}, nil
	}

	grid := make(RawGrid, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
