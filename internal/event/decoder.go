package event

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Decoder reads newline-delimited JSON records.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns up to max records. It returns io.EOF once the input is
// exhausted and no records were read.
func (d *Decoder) Next(max int) (Batch, error) {
	batch := make(Batch, 0, max)
	for len(batch) < max && d.scanner.Scan() {
		d.line++
		raw := d.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return batch, fmt.Errorf("line %d: %w", d.line, err)
		}
		batch = append(batch, rec)
	}
	if err := d.scanner.Err(); err != nil {
		return batch, err
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}
