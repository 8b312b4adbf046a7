package filesystem

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
)

// encodeLines renders entries as newline-delimited envelopes.
// Entries that fail to encode are reported through onSkip and left out.
func encodeLines(entries []entity.Entry, onSkip func(entity.Entry, error)) ([]byte, []entity.Entry) {
	var buf bytes.Buffer
	encoded := make([]entity.Entry, 0, len(entries))

	for _, entry := range entries {
		line, err := entity.MarshalEntry(entry)
		if err != nil {
			onSkip(entry, err)
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		encoded = append(encoded, entry)
	}

	return buf.Bytes(), encoded
}

// decodeLines parses newline-delimited envelopes. Malformed lines are
// reported through onSkip with their 1-based line number.
func decodeLines(r io.Reader, onSkip func(line int, err error)) ([]entity.Entry, error) {
	reader := bufio.NewReader(r)
	entries := make([]entity.Entry, 0)

	for lineNo := 1; ; lineNo++ {
		raw, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return entries, readErr
		}

		if line := bytes.TrimSpace(raw); len(line) > 0 {
			entry, err := entity.UnmarshalEntry(line)
			if err != nil {
				onSkip(lineNo, err)
			} else {
				entries = append(entries, entry)
			}
		}

		if errors.Is(readErr, io.EOF) {
			return entries, nil
		}
	}
}
