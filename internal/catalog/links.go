package catalog

import (
	"bufio"
	"bytes"
	"strings"
)

// ExtractLinks parses the content of a link file and returns the valid URLs
// in line order. A line is a link iff, once trimmed, it starts with http://
// or https://. Every other line is ignored. Duplicate URLs are returned once.
func ExtractLinks(content []byte) []string {
	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if !isLink(line) || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	// A scanner error means an over-long line; the lines read so far stand.
	return urls
}

func isLink(line string) bool {
	return strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://")
}
