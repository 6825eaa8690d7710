package harness

import (
	"context"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// RunTest runs the script at path against a fresh CoordTest. datadriven
// checks every directive's output against its expectation, or rewrites the
// expectations in place when the test binary runs with -rewrite. A fatal
// directive error fails the test at the directive's position and leaves
// the file untouched.
func RunTest(t *testing.T, path string, opts ...Option) {
	t.Helper()
	runTest(t, path, opts, nil)
}

// runTest is RunTest with an observer that sees every directive and its
// output after it ran.
func runTest(t *testing.T, path string, opts []Option, observe func(d *datadriven.TestData, out string)) {
	t.Helper()

	ctx := context.Background()
	ct, err := New(ctx, opts...)
	if err != nil {
		t.Fatalf("starting harness: %v", err)
	}
	defer func() {
		if err := ct.Close(); err != nil {
			t.Errorf("closing harness: %v", err)
		}
	}()

	datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
		out, err := ct.Execute(ctx, d)
		if err != nil {
			t.Fatalf("%v", err)
		}
		if observe != nil {
			observe(d, out)
		}
		return out
	})
}
