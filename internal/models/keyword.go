// Package models defines the data structures shared by the fetch, cache and clustering layers.
package models

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Keyword is a normalized search phrase. Use NormalizeKeyword to build one.
type Keyword = string

// NormalizeKeyword lowercases, trims and collapses internal whitespace.
func NormalizeKeyword(s string) Keyword {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeKeywords normalizes and de-duplicates keywords, keeping first-seen order.
// Empty entries are dropped.
func NormalizeKeywords(in []string) []Keyword {
	seen := make(map[Keyword]struct{}, len(in))
	out := make([]Keyword, 0, len(in))
	for _, raw := range in {
		kw := NormalizeKeyword(raw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// ParseKeywordLines reads one keyword per line.
func ParseKeywordLines(r io.Reader) ([]Keyword, error) {
	var raw []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw = append(raw, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return NormalizeKeywords(raw), nil
}

// ParseKeywordCSV reads keywords from the first column of a CSV document.
// A header row named "keyword" or "keywords" is skipped.
func ParseKeywordCSV(r io.Reader) ([]Keyword, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var raw []string
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		if first {
			first = false
			if h := NormalizeKeyword(record[0]); h == "keyword" || h == "keywords" {
				continue
			}
		}
		raw = append(raw, record[0])
	}
	return NormalizeKeywords(raw), nil
}
