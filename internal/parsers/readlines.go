// Package parsers holds the pure, side-effect-free readers that turn the
// on-disk Claude Code state (JSONL transcripts, team/task JSON files) into
// Registry-shaped values. Only the git probe takes an injected exec
// capability; everything else is a straight function of its input bytes.
package parsers

import (
	"bufio"
	"io"
	"os"
)

// ReadNewLines streams path from fromByte and returns the complete lines
// read plus the new offset. A trailing partial line (no newline yet) is
// not consumed — the caller will see it again, completed, on the next call.
// If the file has shrunk below fromByte (truncation or log rotation), it
// rewinds and reads from the beginning.
func ReadNewLines(path string, fromByte int64) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fromByte, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fromByte, err
	}

	offset := fromByte
	if info.Size() < offset {
		offset = 0
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, offset, err
		}
	}

	var lines []string
	reader := bufio.NewReader(f)
	parsedOffset := offset

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return lines, parsedOffset, err
		}
		if len(line) == 0 {
			break
		}
		if line[len(line)-1] != '\n' {
			// incomplete trailing line: leave it for the next read.
			break
		}
		lines = append(lines, string(line[:len(line)-1]))
		parsedOffset += int64(len(line))
		if err == io.EOF {
			break
		}
	}

	return lines, parsedOffset, nil
}
