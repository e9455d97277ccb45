package output_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/shopflow/internal/config"
	"github.com/torosent/shopflow/internal/output"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	io.Copy(io.Discard, r.Body)
	b.mu.Lock()
	b.objects[r.URL.Path] = r.Header.Get("Content-Type")
	b.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func TestUploaderPutsRunFiles(t *testing.T) {
	bucket := &fakeBucket{objects: make(map[string]string)}
	srv := httptest.NewServer(bucket)
	defer srv.Close()

	dir := t.TempDir()
	files, err := output.WriteRunFiles(output.RunFiles{Dir: dir, HTML: true}, output.Report{RunID: "01RUN"})
	if err != nil {
		t.Fatalf("WriteRunFiles() error = %v", err)
	}

	up, err := output.NewUploader(config.UploadConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "loadtests",
		Prefix:    "/nightly/",
		AccessKey: "ak",
		SecretKey: "sk",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	keys, err := up.Upload(context.Background(), "01RUN", files)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	want := []string{"nightly/01RUN/summary.json", "nightly/01RUN/summary.txt", "nightly/01RUN/summary.html"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", keys, want)
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if ct := bucket.objects["/loadtests/nightly/01RUN/summary.json"]; ct != "application/json" {
		t.Errorf("summary.json content type = %q (objects %v)", ct, bucket.objects)
	}
	if _, ok := bucket.objects["/loadtests/nightly/01RUN/summary.txt"]; !ok {
		t.Errorf("summary.txt not uploaded: %v", bucket.objects)
	}
}

func TestUploaderMissingFile(t *testing.T) {
	up, err := output.NewUploader(config.UploadConfig{Endpoint: "127.0.0.1:1", Bucket: "b", AccessKey: "a", SecretKey: "s", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	missing := filepath.Join(t.TempDir(), "nope.json")
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatal("expected missing file")
	}
	if _, err := up.Upload(context.Background(), "r", []string{missing}); err == nil {
		t.Error("Upload() of a missing file should fail")
	}
}
