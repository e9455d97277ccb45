package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestNewJSONBody(t *testing.T) {
	t.Run("nil body", func(t *testing.T) {
		source, err := NewJSONBody(nil)
		if err != nil {
			t.Fatalf("NewJSONBody(nil) error = %v", err)
		}
		if length, ok := source.ContentLength(); !ok || length != 0 {
			t.Errorf("ContentLength() = %d, %v; want 0, true", length, ok)
		}
		rc, err := source.NewReader()
		if err != nil {
			t.Fatalf("NewReader() error = %v", err)
		}
		if rc != http.NoBody {
			t.Errorf("NewReader() = %T, want http.NoBody", rc)
		}
	})

	t.Run("struct body is reusable", func(t *testing.T) {
		body := map[string]any{"productId": "p-1", "variantId": nil, "quantity": 1}
		source, err := NewJSONBody(body)
		if err != nil {
			t.Fatalf("NewJSONBody() error = %v", err)
		}

		want := `{"productId":"p-1","quantity":1,"variantId":null}`
		if length, ok := source.ContentLength(); !ok || length != int64(len(want)) {
			t.Errorf("ContentLength() = %d, %v; want %d, true", length, ok, len(want))
		}
		for i := 0; i < 2; i++ {
			rc, err := source.NewReader()
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(data) != want {
				t.Errorf("read %d = %s, want %s", i, data, want)
			}
		}
	})

	t.Run("unencodable body", func(t *testing.T) {
		if _, err := NewJSONBody(map[string]any{"ch": make(chan int)}); err == nil {
			t.Error("NewJSONBody(chan) error = nil, want error")
		}
	})
}

func TestReadBodyBounded(t *testing.T) {
	big := strings.Repeat("x", maxBodyBytes+10)
	data, err := readBody(strings.NewReader(big))
	if err != nil {
		t.Fatalf("readBody() error = %v", err)
	}
	if len(data) != maxBodyBytes {
		t.Errorf("readBody() kept %d bytes, want %d", len(data), maxBodyBytes)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet([]byte("  {\"error\":\"boom\"}\n")); got != `{"error":"boom"}` {
		t.Errorf("snippet() = %q", got)
	}
	long := []byte(strings.Repeat("a", maxSnippetBytes*2))
	if got := snippet(long); len(got) != maxSnippetBytes {
		t.Errorf("snippet() length = %d, want %d", len(got), maxSnippetBytes)
	}
}
