// Package export renders snapshot sequences as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"aquawatch/pkg/stats"
)

// FileName is the default output file.
const FileName = "exportedData.csv"

// ErrNoData is returned for an empty snapshot sequence. No output is produced.
var ErrNoData = errors.New("no data to export")

// CSV renders snapshots as "unixTime,<keys...>" followed by one row per
// snapshot. Columns follow the key order of the first snapshot; a key a
// later snapshot lacks renders as an empty field. There is no trailing
// newline.
func CSV(snapshots []stats.Snapshot) (string, error) {
	if len(snapshots) == 0 {
		return "", ErrNoData
	}

	keys := snapshots[0].Readings.Keys()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(keys)+1)
	header = append(header, "unixTime")
	header = append(header, keys...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(keys)+1)
	for _, s := range snapshots {
		row[0] = strconv.FormatInt(s.Timestamp, 10)
		for i, k := range keys {
			if v, ok := s.Readings.Get(k); ok {
				row[i+1] = FormatNumber(v)
			} else {
				row[i+1] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row %d: %w", s.Timestamp, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// WriteCSV writes the same bytes CSV returns.
func WriteCSV(out io.Writer, snapshots []stats.Snapshot) error {
	data, err := CSV(snapshots)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, data)
	return err
}

// WriteFile writes the CSV to path. Nothing is created when there is no data.
func WriteFile(path string, snapshots []stats.Snapshot) error {
	data, err := CSV(snapshots)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatNumber prints v the way a browser prints a number: shortest
// round-trip digits, exponent form outside [1e-6, 1e21), and NaN/Infinity
// spelled out.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	abs := math.Abs(v)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
