package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/datadriven"

	"github.com/roach88/coordtest/internal/coord"
	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/repr"
)

type directiveFunc func(ct *CoordTest, ctx context.Context, d *datadriven.TestData) (string, error)

var directives map[string]directiveFunc

func init() {
	directives = map[string]directiveFunc{
		"sql":           (*CoordTest).runSQL,
		"wait-sql":      (*CoordTest).waitSQL,
		"async-sql":     (*CoordTest).asyncSQL,
		"async-cancel":  (*CoordTest).asyncCancel,
		"await-sql":     (*CoordTest).awaitSQL,
		"update-upper":  (*CoordTest).updateUpper,
		"inc-timestamp": (*CoordTest).incTimestamp,
		"create-file":   (*CoordTest).createFile,
		"append-file":   (*CoordTest).appendFile,
		"print-catalog": (*CoordTest).printCatalog,
	}
}

// Directives lists the recognized directive names.
func Directives() []string {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	return names
}

// Execute runs one directive and returns its rendered output. Any error is
// a *FatalError.
func (ct *CoordTest) Execute(ctx context.Context, d *datadriven.TestData) (string, error) {
	if ct.verbose {
		ct.logger.Info("directive", "directive", d.Cmd, "args", d.CmdArgs, "input", d.Input)
	}
	fn, ok := directives[d.Cmd]
	if !ok {
		return "", &FatalError{Directive: d.Cmd, Pos: d.Pos, Err: fmt.Errorf("%w: %q", ErrUnrecognizedDirective, d.Cmd)}
	}
	out, err := fn(ct, ctx, d)
	if err != nil {
		return "", &FatalError{Directive: d.Cmd, Pos: d.Pos, Err: err}
	}
	return out, nil
}

// argVals returns the values of the argument key and whether it was given.
func argVals(d *datadriven.TestData, key string) ([]string, bool) {
	for _, arg := range d.CmdArgs {
		if arg.Key == key {
			return arg.Vals, true
		}
	}
	return nil, false
}

func (ct *CoordTest) rewriteQuery(query string) string {
	return strings.ReplaceAll(query, Placeholder, ct.tempDir)
}

// render resolves row streams and joins the outcomes, one per line, with a
// trailing newline.
func (ct *CoordTest) render(ctx context.Context, results []coord.ExecuteResponse) (string, error) {
	strs := make([]string, 0, len(results)+1)
	for _, r := range results {
		if r.Kind != coord.SendingRows {
			strs = append(strs, r.String())
			continue
		}
		resp, err := ct.waitForPeek(ctx, r.Rows)
		if err != nil {
			return "", err
		}
		strs = append(strs, resp.String())
	}
	strs = append(strs, "")
	return strings.Join(strs, "\n"), nil
}

func (ct *CoordTest) runSQL(ctx context.Context, d *datadriven.TestData) (string, error) {
	query := ct.rewriteQuery(d.Input)
	var results []coord.ExecuteResponse
	err := ct.WithSession(ctx, func(ctx context.Context, s *Session) error {
		var err error
		results, err = ct.RunStatements(ctx, s, query)
		return err
	})
	if err != nil {
		return "", err
	}
	return ct.render(ctx, results)
}

func (ct *CoordTest) waitSQL(ctx context.Context, d *datadriven.TestData) (string, error) {
	catalog, err := ct.Catalog(ctx)
	if err != nil {
		return "", err
	}
	paths, _ := argVals(d, "exclude-uppers")
	ids := make([]repr.ObjectID, 0, len(paths))
	for _, p := range paths {
		id, err := catalog.Resolve(p)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	excluded := feedback.NewObjectSet(ids...)

	query := ct.rewriteQuery(d.Input)
	start := ct.wall.Now()
	for attempt := 1; ; attempt++ {
		if err := ct.interceptor.ReleaseExcluding(excluded); err != nil {
			return "", err
		}
		reason, err := ct.checkAllTrue(ctx, query)
		if err != nil {
			return "", err
		}
		if reason == nil {
			ct.logger.Debug("wait-sql satisfied", "attempt", attempt, "ts", uint64(ct.clock.Now()))
			return "", nil
		}
		if ct.wall.Since(start) > ct.waitTimeout {
			return "", fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempt, reason)
		}
		ct.clock.Advance(1)
	}
}

// checkAllTrue runs query once. A nil reason means every datum of every
// result was true; a non-nil reason is a retryable failure. err is fatal.
func (ct *CoordTest) checkAllTrue(ctx context.Context, query string) (reason error, err error) {
	var results []coord.ExecuteResponse
	err = ct.WithSession(ctx, func(ctx context.Context, s *Session) error {
		var err error
		results, err = ct.RunStatements(ctx, s, query)
		return err
	})
	if err != nil {
		if errors.Is(err, coord.ErrStopped) || ctx.Err() != nil {
			return nil, err
		}
		return err, nil
	}

	for _, r := range results {
		if r.Kind != coord.SendingRows {
			return nil, protocolf("wait-sql expected SendingRows, got %s", r)
		}
	}
	for _, r := range results {
		resp, err := ct.waitForPeek(ctx, r.Rows)
		if err != nil {
			return nil, err
		}
		if resp.Kind != feedback.PeekRows {
			reason = errors.New(resp.String())
			continue
		}
		for _, row := range resp.Rows {
			for _, datum := range row {
				if !repr.IsTrue(datum) {
					reason = fmt.Errorf("datum %s != true", datum)
				}
			}
		}
	}
	return reason, nil
}

func sessionArg(d *datadriven.TestData) (string, error) {
	vals, ok := argVals(d, "session")
	if !ok || len(vals) != 1 {
		return "", protocolf("%s requires session=<name>", d.Cmd)
	}
	return vals[0], nil
}

func (ct *CoordTest) asyncSQL(ctx context.Context, d *datadriven.TestData) (string, error) {
	name, err := sessionArg(d)
	if err != nil {
		return "", err
	}
	query := ct.rewriteQuery(d.Input)
	var results []coord.ExecuteResponse
	err = ct.WithPersistedSession(ctx, name, func(ctx context.Context, s *Session) error {
		var err error
		results, err = ct.RunStatements(ctx, s, query)
		return err
	})
	if err != nil {
		return "", err
	}
	ct.Defer(name, results)
	return "", nil
}

func (ct *CoordTest) asyncCancel(ctx context.Context, d *datadriven.TestData) (string, error) {
	name, err := sessionArg(d)
	if err != nil {
		return "", err
	}
	if d.Input != "" {
		return "", protocolf("async-cancel only takes an argument")
	}
	return "", ct.Cancel(ctx, name)
}

func (ct *CoordTest) awaitSQL(ctx context.Context, d *datadriven.TestData) (string, error) {
	name, err := sessionArg(d)
	if err != nil {
		return "", err
	}
	if d.Input != "" {
		return "", protocolf("await-sql only takes an argument")
	}
	return ct.Await(ctx, name)
}

// updateUpper injects one FrontierUppers message straight into the
// coordinator, one entry per "path N" line.
func (ct *CoordTest) updateUpper(ctx context.Context, d *datadriven.TestData) (string, error) {
	catalog, err := ct.Catalog(ctx)
	if err != nil {
		return "", err
	}

	var updates []feedback.FrontierUpdate
	for line := range strings.Lines(d.Input) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return "", protocolf("update-upper line %q: want \"path timestamp\"", strings.TrimSpace(line))
		}
		id, err := catalog.Resolve(fields[0])
		if err != nil {
			return "", err
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return "", protocolf("update-upper %s: invalid timestamp %q", fields[0], fields[1])
		}
		ts := repr.Timestamp(n)
		// Readers see upper-1, so an upper of 1 or less makes nothing visible.
		if ts <= 1 {
			return "", protocolf("update-upper %s: timestamp %d must be greater than 1", fields[0], ts)
		}
		old, tracked := ct.uppers[id]
		if !tracked {
			// The first injection retracts whatever the coordinator holds.
			if old, err = ct.upper(ctx, id); err != nil {
				return "", err
			}
		}
		if ts < old {
			return "", protocolf("update-upper %s: timestamp %d is behind current upper %d", fields[0], ts, old)
		}
		ct.uppers[id] = ts
		changes := repr.NewChangeBatchFrom(old, -1).Update(ts, 1).Compact()
		if len(changes) == 0 {
			continue
		}
		updates = append(updates, feedback.FrontierUpdate{ID: id, Changes: changes})
		ct.logger.Debug("upper injected", "object_id", id, "from", uint64(old), "to", uint64(ts))
	}
	if len(updates) == 0 {
		return "", nil
	}
	return "", ct.interceptor.Inject(feedback.FrontierUppers(feedback.WorkerID, updates...))
}

// upper reads the upper the coordinator holds for id.
func (ct *CoordTest) upper(ctx context.Context, id repr.ObjectID) (repr.Timestamp, error) {
	var upper repr.Timestamp
	err := ct.WithSession(ctx, func(ctx context.Context, s *Session) error {
		var err error
		upper, _, err = s.client.Upper(ctx, id)
		return err
	})
	return upper, err
}

func (ct *CoordTest) incTimestamp(_ context.Context, d *datadriven.TestData) (string, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(d.Input), 10, 64)
	if err != nil {
		return "", protocolf("inc-timestamp: invalid increment %q", strings.TrimSpace(d.Input))
	}
	ct.clock.Advance(n)
	return "", nil
}

func (ct *CoordTest) fixturePath(d *datadriven.TestData) (string, error) {
	vals, ok := argVals(d, "name")
	if !ok || len(vals) != 1 {
		return "", protocolf("%s requires name=<file>", d.Cmd)
	}
	if !filepath.IsLocal(vals[0]) {
		return "", protocolf("%s: %q is not a local file name", d.Cmd, vals[0])
	}
	return filepath.Join(ct.tempDir, vals[0]), nil
}

// fixtureLines terminates every body line. datadriven trims the body, so
// the final newline is restored here.
func fixtureLines(input string) string {
	if input == "" {
		return ""
	}
	return input + "\n"
}

func (ct *CoordTest) createFile(_ context.Context, d *datadriven.TestData) (string, error) {
	path, err := ct.fixturePath(d)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create fixture: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(fixtureLines(d.Input)); err != nil {
		return "", fmt.Errorf("failed to write fixture: %w", err)
	}
	return "", f.Close()
}

func (ct *CoordTest) appendFile(_ context.Context, d *datadriven.TestData) (string, error) {
	path, err := ct.fixturePath(d)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return "", fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(fixtureLines(d.Input)); err != nil {
		return "", fmt.Errorf("failed to append fixture: %w", err)
	}
	return "", f.Close()
}

func (ct *CoordTest) printCatalog(ctx context.Context, _ *datadriven.TestData) (string, error) {
	catalog, err := ct.Catalog(ctx)
	if err != nil {
		return "", err
	}
	return catalog.YAML()
}
