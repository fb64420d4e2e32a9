package pserial

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGolden checks JSON fixtures against their expected wire text.
func TestGolden(t *testing.T) {
	casesDir := filepath.Join("testdata", "golden", "cases")
	wantDir := filepath.Join("testdata", "golden", "want")

	entries, err := os.ReadDir(wantDir)
	if err != nil {
		t.Fatalf("failed to read golden dir: %v", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".want") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".want")
		t.Run(name, func(t *testing.T) {
			jsonBytes, err := os.ReadFile(filepath.Join(casesDir, name+".json"))
			if err != nil {
				t.Fatalf("failed to read JSON: %v", err)
			}
			wantBytes, err := os.ReadFile(filepath.Join(wantDir, name+".want"))
			if err != nil {
				t.Fatalf("failed to read expected output: %v", err)
			}
			expected := strings.TrimSpace(string(wantBytes))

			v, err := FromJSON(jsonBytes)
			if err != nil {
				t.Fatalf("FromJSON failed: %v", err)
			}

			got, err := Encode(v)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if got != expected {
				t.Errorf("output mismatch\n  got:      %s\n  expected: %s", got, expected)
			}

			// Decode the fixture and come back through JSON
			parsed, err := Decode(expected)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !Equal(parsed, v) {
				t.Errorf("decoded fixture differs from JSON case\n%s", Dump(parsed))
			}

			out, err := ToJSON(parsed)
			if err != nil {
				t.Fatalf("ToJSON failed: %v", err)
			}
			back, err := FromJSON(out)
			if err != nil {
				t.Fatalf("FromJSON(ToJSON) failed: %v", err)
			}
			if !Equal(back, v) {
				t.Errorf("JSON round-trip mismatch\n  json: %s", out)
			}
		})
	}
}
