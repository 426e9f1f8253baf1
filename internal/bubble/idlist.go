package bubble

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrEmptyIDList is returned when the payload carries no ids
	ErrEmptyIDList = errors.New("id list is empty")
	// ErrMissingIDColumn is returned when no CSV header names the id column
	ErrMissingIDColumn = errors.New("id list has no id column")
)

// IDStamp is one remote id with the modification date reported by the export
type IDStamp struct {
	ID           string    `json:"id"`
	ModifiedDate time.Time `json:"modified_date"`
}

// HasDate reports whether the export carried a modification date
func (s IDStamp) HasDate() bool {
	return !s.ModifiedDate.IsZero()
}

var (
	idHeaders       = []string{"unique id", "_id", "bubble_id", "id"}
	modifiedHeaders = []string{"modified date", "modified_date", "modifieddate"}
)

// ParseIDList reads a csv or json id export. format is "csv", "json" or empty to sniff.
func ParseIDList(r io.Reader, format string) ([]IDStamp, error) {
	// spreadsheet exports may carry a UTF-8 or UTF-16 byte order mark
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))

	if format == "" {
		format = sniffFormat(br)
	}

	var (
		stamps []IDStamp
		err    error
	)
	switch strings.ToLower(format) {
	case "json":
		stamps, err = parseJSONIDs(br)
	case "csv":
		stamps, err = parseCSVIDs(br)
	default:
		return nil, fmt.Errorf("unsupported id list format %q", format)
	}
	if err != nil {
		return nil, err
	}
	stamps = dedupe(stamps)
	if len(stamps) == 0 {
		return nil, ErrEmptyIDList
	}
	return stamps, nil
}

func sniffFormat(br *bufio.Reader) string {
	peek, _ := br.Peek(64)
	head := strings.TrimLeft(string(peek), " \t\r\n")
	if strings.HasPrefix(head, "[") || strings.HasPrefix(head, "{") {
		return "json"
	}
	return "csv"
}

func parseCSVIDs(r io.Reader) ([]IDStamp, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyIDList
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idCol, modCol := -1, -1
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if idCol == -1 && contains(idHeaders, name) {
			idCol = i
		}
		if modCol == -1 && contains(modifiedHeaders, name) {
			modCol = i
		}
	}
	if idCol == -1 {
		return nil, ErrMissingIDColumn
	}

	var out []IDStamp
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if idCol >= len(row) || strings.TrimSpace(row[idCol]) == "" {
			continue
		}
		stamp := IDStamp{ID: strings.TrimSpace(row[idCol])}
		if modCol >= 0 && modCol < len(row) && strings.TrimSpace(row[modCol]) != "" {
			t, err := ParseTime(row[modCol])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			stamp.ModifiedDate = t
		}
		out = append(out, stamp)
	}
	return out, nil
}

type jsonStamp struct {
	ID           string `json:"id"`
	UniqueID     string `json:"_id"`
	ModifiedDate string `json:"modified_date"`
	Modified     string `json:"Modified Date"`
}

func parseJSONIDs(r io.Reader) ([]IDStamp, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read id list: %w", err)
	}

	var items []jsonStamp
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Items []jsonStamp `json:"items"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("invalid json id list: %w", err)
		}
		items = wrapped.Items
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("invalid json id list: %w", err)
	}

	out := make([]IDStamp, 0, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = item.UniqueID
		}
		if id == "" {
			continue
		}
		stamp := IDStamp{ID: id}
		mod := item.ModifiedDate
		if mod == "" {
			mod = item.Modified
		}
		if mod != "" {
			t, err := ParseTime(mod)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			stamp.ModifiedDate = t
		}
		out = append(out, stamp)
	}
	return out, nil
}

// dedupe keeps the newest stamp per id in first-seen order
func dedupe(in []IDStamp) []IDStamp {
	index := make(map[string]int, len(in))
	out := make([]IDStamp, 0, len(in))
	for _, s := range in {
		if i, ok := index[s.ID]; ok {
			if s.ModifiedDate.After(out[i].ModifiedDate) {
				out[i].ModifiedDate = s.ModifiedDate
			}
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
