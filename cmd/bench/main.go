// bench - format size comparison
//
// Converts every JSON case in a directory to the value model and reports
// the encoded size in each format, plus the framed size of the wire text
// under zstd and lz4.
//
// Usage:
//
//	bench [--dir pserial/testdata/golden/cases] [--csv out.csv]
//
// Output: markdown summary on stdout, optional CSV.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/pflag"

	"github.com/Neumenon/pserial/envelope"
	"github.com/Neumenon/pserial/internal/formats"
	"github.com/Neumenon/pserial/pserial"
)

type CaseResult struct {
	Name  string
	Sizes map[string]int
}

func main() {
	var dir, csvPath string
	flagSet := pflag.NewFlagSet("bench", pflag.ExitOnError)
	flagSet.StringVar(&dir, "dir", "", "directory of JSON cases")
	flagSet.StringVar(&csvPath, "csv", "", "also write results as CSV to this file")
	flagSet.Parse(os.Args[1:])

	if dir == "" {
		dir = findTestdata()
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Cannot find testdata/golden/cases directory")
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No cases in %s\n", dir)
		os.Exit(1)
	}
	sort.Strings(files)

	set := formats.New(pserial.New())
	columns := append(set.Names(), "php+zstd", "php+lz4")

	var results []CaseResult
	for _, path := range files {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: %v\n", name, err)
			continue
		}
		v, err := pserial.FromJSON(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: parse error: %v\n", name, err)
			continue
		}

		r, err := measure(set, name, v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: %v\n", name, err)
			continue
		}
		results = append(results, r)
	}

	if csvPath != "" {
		if f, err := os.Create(csvPath); err == nil {
			writeCSV(f, columns, results)
			f.Close()
			fmt.Fprintf(os.Stderr, "CSV written to: %s\n", csvPath)
		}
	}
	writeMarkdown(os.Stdout, columns, results)
}

func measure(set *formats.Set, name string, v *pserial.Value) (CaseResult, error) {
	r := CaseResult{Name: name, Sizes: make(map[string]int)}
	for _, format := range set.Names() {
		out, err := set.Encode(format, v)
		if err != nil {
			return r, fmt.Errorf("%s: %w", format, err)
		}
		r.Sizes[format] = len(out)
	}

	wire, err := set.Encode(formats.Native, v)
	if err != nil {
		return r, err
	}
	for _, c := range []envelope.Compression{envelope.CompressionZstd, envelope.CompressionLZ4} {
		var buf bytes.Buffer
		if err := envelope.NewWriter(&buf, envelope.WithCompression(c)).Write(wire); err != nil {
			return r, err
		}
		r.Sizes["php+"+c.String()] = buf.Len()
	}
	return r, nil
}

func findTestdata() string {
	paths := []string{
		"pserial/testdata/golden/cases",
		"../pserial/testdata/golden/cases",
		"../../pserial/testdata/golden/cases",
	}
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			return p
		}
	}
	return ""
}

func writeCSV(w io.Writer, columns []string, results []CaseResult) {
	fmt.Fprint(w, "name")
	for _, c := range columns {
		fmt.Fprintf(w, ",%s", c)
	}
	fmt.Fprintln(w)
	for _, r := range results {
		fmt.Fprint(w, r.Name)
		for _, c := range columns {
			fmt.Fprintf(w, ",%d", r.Sizes[c])
		}
		fmt.Fprintln(w)
	}
}

func writeMarkdown(w io.Writer, columns []string, results []CaseResult) {
	fmt.Fprintf(w, "# Format Size Comparison\n\n")
	fmt.Fprintf(w, "**Cases:** %d  \n", len(results))
	fmt.Fprintf(w, "Framed sizes include the envelope header.\n\n")

	fmt.Fprint(w, "| Case |")
	for _, c := range columns {
		fmt.Fprintf(w, " %s |", c)
	}
	fmt.Fprint(w, "\n|------|")
	for range columns {
		fmt.Fprint(w, "------|")
	}
	fmt.Fprintln(w)

	totals := make(map[string]int)
	for _, r := range results {
		fmt.Fprintf(w, "| %s |", truncateName(r.Name, 25))
		for _, c := range columns {
			fmt.Fprintf(w, " %d |", r.Sizes[c])
			totals[c] += r.Sizes[c]
		}
		fmt.Fprintln(w)
	}
	fmt.Fprint(w, "| **Total** |")
	for _, c := range columns {
		fmt.Fprintf(w, " %d |", totals[c])
	}
	fmt.Fprintln(w)

	native := totals[formats.Native]
	if native == 0 {
		return
	}
	fmt.Fprintf(w, "\n## Relative to %s\n\n", formats.Native)
	for _, c := range columns {
		fmt.Fprintf(w, "- **%s:** %.1f%%\n", c, float64(totals[c])/float64(native)*100)
	}
}

func truncateName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
