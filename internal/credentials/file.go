package credentials

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/torosent/shopflow/internal/config"
)

// LoadFile reads a token pool. The format follows the extension:
//   - .csv: a header row with a "token" column
//   - .json: an array of strings or of objects with a "token" field
//   - anything else: one token per line, blank lines and # comments skipped
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}

	var tokens []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		tokens, err = parseCSV(data)
	case ".json":
		tokens, err = parseJSON(data)
	default:
		tokens, err = parseLines(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s: token file contains no tokens", path)
	}
	return tokens, nil
}

func parseCSV(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("CSV file must have a header row and at least one data row")
	}

	col := -1
	for i, name := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(name), "token") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.New(`CSV header has no "token" column`)
	}

	tokens := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if col >= len(row) {
			return nil, fmt.Errorf("row %d has %d fields, expected at least %d", i+2, len(row), col+1)
		}
		if tok := strings.TrimSpace(row[col]); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

func parseJSON(data []byte) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("decode JSON: invalid document")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("JSON token file must be an array")
	}

	var tokens []string
	for i, item := range root.Array() {
		var tok string
		switch {
		case item.IsObject():
			field := item.Get("token")
			if !field.Exists() {
				return nil, fmt.Errorf("record %d has no token field", i)
			}
			tok = field.String()
		case item.Type == gjson.String:
			tok = item.String()
		default:
			return nil, fmt.Errorf("record %d: expected string or object, got %s", i, item.Type)
		}
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

func parseLines(data []byte) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	return tokens, scanner.Err()
}

// FromConfig combines token_list, token_file and the shared token into a
// Rotation. File tokens are appended after listed ones.
func FromConfig(cfg *config.Config) (*Rotation, error) {
	pool := append([]string(nil), cfg.TokenList...)
	if path := strings.TrimSpace(cfg.TokenFile); path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		pool = append(pool, fromFile...)
	}
	return New(pool, cfg.Token)
}
