package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Neumenon/pserial/internal/formats"
	"github.com/Neumenon/pserial/pserial"
)

func TestMeasure(t *testing.T) {
	set := formats.New(pserial.New())
	v := pserial.List(pserial.Int(1), pserial.Str("two"))

	r, err := measure(set, "case.json", v)
	if err != nil {
		t.Fatalf("measure failed: %v", err)
	}
	if r.Sizes["php"] != len(`a:2:{i:0;i:1;i:1;s:3:"two";}`) {
		t.Errorf("php size: got %d", r.Sizes["php"])
	}
	if r.Sizes["json"] != len(`[1,"two"]`) {
		t.Errorf("json size: got %d", r.Sizes["json"])
	}
	if r.Sizes["php+zstd"] <= r.Sizes["php"] {
		t.Errorf("framed size should include the header: %d", r.Sizes["php+zstd"])
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	results := []CaseResult{{Name: "a.json", Sizes: map[string]int{"php": 10, "json": 5}}}
	writeMarkdown(&buf, []string{"php", "json"}, results)

	out := buf.String()
	if !strings.Contains(out, "| a.json | 10 | 5 |") {
		t.Errorf("missing row:\n%s", out)
	}
	if !strings.Contains(out, "- **json:** 50.0%") {
		t.Errorf("missing ratio:\n%s", out)
	}
}

func TestTruncateName(t *testing.T) {
	if got := truncateName(strings.Repeat("x", 30), 10); got != "xxxxxxx..." {
		t.Errorf("got %s", got)
	}
}
