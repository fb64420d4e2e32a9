package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Neumenon/pserial/internal/config"
	"github.com/Neumenon/pserial/pserial"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, codec *pserial.Codec) (*gin.Engine, *Handler, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewHandler(codec, 1024, logger)
	return NewRouter(h, logger), h, &logs
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDecode(t *testing.T) {
	router, _, logs := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/decode", `a:2:{i:0;s:1:"x";s:1:"k";O:8:"stdClass":1:{s:1:"n";N;}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}

	var resp DecodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if resp.Kind != "array" {
		t.Errorf("Expected kind 'array', got '%s'", resp.Kind)
	}
	if string(resp.Value) != `{"0":"x","k":{"__class":"stdClass","n":null}}` {
		t.Errorf("Unexpected value %s", resp.Value)
	}
	if !strings.Contains(resp.Dump, `object(stdClass)`) {
		t.Errorf("Expected dump to show the object, got:\n%s", resp.Dump)
	}
	if !strings.Contains(logs.String(), "path=/v1/decode") {
		t.Errorf("Expected request log line, got %q", logs.String())
	}
}

func TestDecode_NonFinite(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/decode", `d:INF;`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp DecodeResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if string(resp.Value) != "null" || !strings.Contains(resp.Dump, "INF") {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestDecode_Errors(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"malformed", "i:1", http.StatusBadRequest, "malformed_input"},
		{"unknown type", "x:1;", http.StatusBadRequest, "unknown_type"},
		{"trailing", "N;N;", http.StatusBadRequest, "malformed_input"},
		{"too large", "s:2000:\"" + strings.Repeat("a", 2000) + "\";", http.StatusRequestEntityTooLarge, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/v1/decode", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Invalid JSON response: %v", err)
			}
			if resp.Kind != tt.wantKind || resp.Error == "" {
				t.Errorf("Unexpected error response %+v", resp)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/encode", `{"a": 1, "b": [true, null], "__ignored": "x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	want := `a:3:{s:1:"a";i:1;s:1:"b";a:2:{i:0;b:1;i:1;N;}s:9:"__ignored";s:1:"x";}`
	if w.Body.String() != want {
		t.Errorf("Expected %s, got %s", want, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Unexpected Content-Type %s", ct)
	}
}

func TestEncode_Errors(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/encode", `{"a": `)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad JSON, got %d", w.Code)
	}

	w = do(router, http.MethodPost, "/v1/encode", `{"__class": "Closure"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for denylisted struct, got %d: %s", w.Code, w.Body)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Kind != "unsupported_type" {
		t.Errorf("Expected kind 'unsupported_type', got '%s'", resp.Kind)
	}
}

func TestConvert(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/convert?from=php&to=yaml", `O:5:"Point":1:{s:1:"x";i:1;}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	if w.Body.String() != "!php/object:Point\nx: 1\n" {
		t.Errorf("Unexpected YAML %q", w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Unexpected Content-Type %s", ct)
	}

	w = do(router, http.MethodPost, "/v1/convert?from=json", `[1, "two"]`)
	if w.Code != http.StatusOK || w.Body.String() != `a:2:{i:0;i:1;i:1;s:3:"two";}` {
		t.Errorf("Unexpected response %d %s", w.Code, w.Body)
	}
}

func TestConvert_Errors(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodPost, "/v1/convert?from=xml", `<a/>`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "unknown_format") {
		t.Errorf("Expected unknown_format, got %d %s", w.Code, w.Body)
	}

	w = do(router, http.MethodPost, "/v1/convert?from=cbor&to=json", "\xff")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad CBOR, got %d", w.Code)
	}

	w = do(router, http.MethodPost, "/v1/convert?to=json", `d:NAN;`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for NaN to JSON, got %d", w.Code)
	}

	bomb := "l0: &l0 [" + strings.TrimSuffix(strings.Repeat("x,", 10), ",") + "]\n"
	for i := 1; i < 8; i++ {
		ref := fmt.Sprintf("*l%d,", i-1)
		bomb += fmt.Sprintf("l%d: &l%d [%s]\n", i, i, strings.TrimSuffix(strings.Repeat(ref, 10), ","))
	}
	w = do(router, http.MethodPost, "/v1/convert?from=yaml&to=php", bomb)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "aliasing") {
		t.Errorf("Expected 400 for alias expansion, got %d %s", w.Code, w.Body)
	}
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t, pserial.New())

	w := do(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `"status":"ok"`) || !strings.Contains(string(body), `"php"`) {
		t.Errorf("Unexpected health body %s", body)
	}
}

func TestSetCodec(t *testing.T) {
	router, h, _ := newTestRouter(t, pserial.New())

	h.SetCodec(pserial.New(pserial.WithHeaderMode(pserial.HeaderUncounted)))
	w := do(router, http.MethodPost, "/v1/encode", `{"__class": "P", "x": 1}`)
	if w.Body.String() != `O:1:"P":{s:1:"x";i:1;}` {
		t.Errorf("Expected uncounted header after swap, got %s", w.Body)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pserial.yaml")
	os.WriteFile(file, []byte("codec:\n  header_mode: counted\n"), 0o644)

	vc, err := config.Load(file)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	router, h, _ := newTestRouter(t, pserial.New())
	Watch(vc, h, slog.New(slog.NewTextHandler(io.Discard, nil)))

	os.WriteFile(file, []byte("codec:\n  header_mode: uncounted\n"), 0o644)
	if err := vc.Reload(); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	w := do(router, http.MethodPost, "/v1/encode", `{"__class": "P"}`)
	if w.Body.String() != `O:1:"P":{}` {
		t.Errorf("Expected reloaded codec, got %s", w.Body)
	}
}
