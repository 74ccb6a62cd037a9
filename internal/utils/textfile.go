package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadTextFile reads a text file up to maxBytes. Files larger than the limit
// are rejected rather than truncated.
func ReadTextFile(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", fmt.Errorf("file %s exceeds %d bytes", path, maxBytes)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NonEmptyLines returns all non-empty, trimmed lines of a text blob.
// Lines consisting only of whitespace or starting with # (comments) are ignored.
func NonEmptyLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
