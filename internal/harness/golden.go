package harness

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs the script at path like RunTest and compares the
// transcript of every directive and its actual output against
// testdata/golden/{name}.golden, where name is the script's base name
// without extension. It returns the number of directives run.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, path string, opts ...Option) int {
	t.Helper()

	var (
		transcript strings.Builder
		n          int
	)
	runTest(t, path, opts, func(d *datadriven.TestData, out string) {
		writeTranscript(&transcript, d, out)
		n++
	})

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(transcript.String()))
	return n
}

// writeTranscript appends one directive in script layout. Outputs that
// contain blank lines go between doubled separators.
func writeTranscript(b *strings.Builder, d *datadriven.TestData, out string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(d.Cmd)
	for _, arg := range d.CmdArgs {
		b.WriteString(" " + formatArg(arg))
	}
	b.WriteString("\n")
	if d.Input != "" {
		b.WriteString(d.Input + "\n")
	}
	if strings.Contains(out, "\n\n") {
		fmt.Fprintf(b, "----\n----\n%s----\n----\n", out)
		return
	}
	b.WriteString("----\n" + out)
}

func formatArg(arg datadriven.CmdArg) string {
	switch len(arg.Vals) {
	case 0:
		return arg.Key
	case 1:
		return arg.Key + "=" + arg.Vals[0]
	default:
		return arg.Key + "=(" + strings.Join(arg.Vals, ", ") + ")"
	}
}
