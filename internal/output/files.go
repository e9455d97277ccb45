package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/torosent/shopflow/internal/config"
)

// File names written under the output directory.
const (
	DigestFile = "summary.txt"
	JSONFile   = "summary.json"
	YAMLFile   = "summary.yaml"
	HTMLFile   = "summary.html"
	lockFile   = ".shopflow.lock"
)

// RunFiles controls which artifacts WriteRunFiles produces.
type RunFiles struct {
	Dir    string
	Format config.ExportFormat
	HTML   bool
}

// WriteRunFiles writes the structured export and the digest (plus the HTML
// report when enabled) into files.Dir. Concurrent runs sharing a directory
// are serialised through a lock file so their outputs never interleave.
// It returns the paths written.
func WriteRunFiles(files RunFiles, report Report) ([]string, error) {
	dir := files.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock output dir: %w", err)
	}
	defer lock.Unlock()

	var export bytes.Buffer
	name := JSONFile
	switch files.Format {
	case config.ExportYAML:
		name = YAMLFile
		if err := PrintYAMLReport(&export, report); err != nil {
			return nil, fmt.Errorf("encode yaml report: %w", err)
		}
	default:
		if err := PrintJSONReport(&export, report); err != nil {
			return nil, fmt.Errorf("encode json report: %w", err)
		}
	}

	var digest bytes.Buffer
	if err := WriteDigest(&digest, report.Metrics); err != nil {
		return nil, err
	}

	outputs := []struct {
		name string
		data []byte
	}{
		{name, export.Bytes()},
		{DigestFile, digest.Bytes()},
	}
	if files.HTML {
		var page bytes.Buffer
		if err := GenerateHTMLReport(&page, report); err != nil {
			return nil, err
		}
		outputs = append(outputs, struct {
			name string
			data []byte
		}{HTMLFile, page.Bytes()})
	}

	written := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		if err := writeFileAtomic(path, out.data); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
