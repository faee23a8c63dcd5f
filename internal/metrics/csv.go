package metrics

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

// WriteCSV emits every record in sequence order. The header row is always
// written, samples or not. Timestamps are epoch seconds; unsettled and lost
// rows leave acked_at and rtt_ms empty.
func (e *Engine) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence", "sent_at", "acked_at", "rtt_ms", "lost"}); err != nil {
		return err
	}
	for _, rec := range e.Records() {
		row := []string{
			strconv.FormatUint(uint64(rec.Seq), 10),
			formatEpoch(rec.SentAt),
			"",
			"",
			strconv.FormatBool(rec.Lost),
		}
		if rec.Acked {
			row[2] = formatEpoch(rec.AckedAt)
			row[3] = strconv.FormatFloat(rec.RTT.Seconds()*1000, 'f', 3, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Flush writes the CSV file at path, replacing any previous run's output.
func (e *Engine) Flush(path string) error {
	var buf bytes.Buffer
	if err := e.WriteCSV(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func formatEpoch(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}
