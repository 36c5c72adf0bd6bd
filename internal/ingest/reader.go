package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// supportedExtensions lists the file types the readers understand.
var supportedExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".csv": true,
}

// Supported reports whether the file type can be read.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ReadDocument reads a corpus file and returns its plain-text content.
// Markdown and text files pass through unchanged; CSV files are rendered
// row by row with column labels so tabular facts survive embedding.
func ReadDocument(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return normalizeText(string(data)), nil
	case ".csv":
		return readCSV(path)
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

// readCSV renders a CSV file as labeled prose. The first record is treated
// as the header; every following record becomes one "header: value" line.
func readCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Table: %s\n", filepath.Base(path)))

	for _, record := range records[1:] {
		var fields []string
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			label := fmt.Sprintf("column %d", i+1)
			if i < len(header) {
				label = strings.TrimSpace(header[i])
			}
			fields = append(fields, fmt.Sprintf("%s: %s", label, value))
		}
		if len(fields) > 0 {
			b.WriteString(strings.Join(fields, "; "))
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// normalizeText unifies line endings and trims trailing whitespace so
// hashing and chunking behave the same across platforms.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
