package credentials_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/shopflow/internal/config"
	"github.com/torosent/shopflow/internal/credentials"
)

func TestForUserRoundRobin(t *testing.T) {
	r, err := credentials.New([]string{"A", "B", "C"}, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []credentials.Credential{"A", "B", "C", "A", "B"}
	for i, w := range want {
		if got := r.ForUser(i + 1); got != w {
			t.Errorf("ForUser(%d) = %q, want %q", i+1, got, w)
		}
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestForUserSharedToken(t *testing.T) {
	r, err := credentials.New(nil, " shared ")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, ordinal := range []int{1, 2, 50} {
		if got := r.ForUser(ordinal); got != "shared" {
			t.Errorf("ForUser(%d) = %q, want shared", ordinal, got)
		}
	}
}

func TestPoolTakesPrecedenceOverShared(t *testing.T) {
	r, err := credentials.New([]string{"", " P1 ", "P2"}, "shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := r.ForUser(1); got != "P1" {
		t.Errorf("ForUser(1) = %q, want P1", got)
	}
	if got := r.ForUser(3); got != "P1" {
		t.Errorf("ForUser(3) = %q, want P1 after wrap", got)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := credentials.New([]string{" ", ""}, "")
	if !errors.Is(err, credentials.ErrNoCredentials) {
		t.Fatalf("New() error = %v, want ErrNoCredentials", err)
	}
}

func TestForUserStableUnderConcurrency(t *testing.T) {
	r, err := credentials.New([]string{"A", "B"}, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var wg sync.WaitGroup
	for vu := 1; vu <= 20; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			first := r.ForUser(vu)
			for i := 0; i < 100; i++ {
				if got := r.ForUser(vu); got != first {
					t.Errorf("ForUser(%d) changed from %q to %q", vu, first, got)
					return
				}
			}
		}(vu)
	}
	wg.Wait()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{"text", "tokens.txt", "# pool\ntok-1\n\n  tok-2  \n", []string{"tok-1", "tok-2"}},
		{"csv", "tokens.csv", "user,token\nalice,tok-a\nbob, tok-b\n", []string{"tok-a", "tok-b"}},
		{"json strings", "tokens.json", `["j1", "j2", ""]`, []string{"j1", "j2"}},
		{"json objects", "tokens.json", `[{"user":"a","token":"o1"},{"token":"o2"}]`, []string{"o1", "o2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentials.LoadFile(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("LoadFile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"csv without token column", "tokens.csv", "user,secret\na,b\n"},
		{"csv header only", "tokens.csv", "token\n"},
		{"json object root", "tokens.json", `{"token":"x"}`},
		{"json invalid", "tokens.json", `[`},
		{"json object without token", "tokens.json", `[{"user":"a"}]`},
		{"empty text", "tokens.txt", "\n# nothing\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := credentials.LoadFile(writeFile(t, tt.file, tt.content)); err == nil {
				t.Fatal("LoadFile() error = nil, want error")
			}
		})
	}

	if _, err := credentials.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("LoadFile(missing) error = nil, want error")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.TokenList = []string{"L1"}
	cfg.TokenFile = writeFile(t, "pool.txt", "F1\nF2\n")
	cfg.Token = "ignored"

	r, err := credentials.FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := r.ForUser(3); got != "F2" {
		t.Errorf("ForUser(3) = %q, want F2", got)
	}
}
