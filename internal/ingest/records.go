package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/hydrate"
)

// maxLine bounds one JSONL record.
const maxLine = 4 << 20

// ReadJSONL decodes one JSON object per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]hydrate.Payload, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var out []hydrate.Payload
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p hydrate.Payload
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}

// ReadFile reads a JSONL file.
func ReadFile(path string) ([]hydrate.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadJSONL(f)
}
