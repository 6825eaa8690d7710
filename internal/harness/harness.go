package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/coordtest/internal/clock"
	"github.com/roach88/coordtest/internal/config"
	"github.com/roach88/coordtest/internal/coord"
	"github.com/roach88/coordtest/internal/dataflow"
	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/store"
)

// DefaultWaitTimeout bounds how long wait-sql retries before failing.
const DefaultWaitTimeout = config.DefaultWaitTimeout

// Placeholder is replaced by the fixture directory in every SQL body.
const Placeholder = "<TEMP>"

type options struct {
	verbose     bool
	wall        quartz.Clock
	waitTimeout time.Duration
	logger      *slog.Logger
	ids         coord.IDGenerator
}

// Option configures a CoordTest.
type Option func(*options)

// WithVerbose logs every directive before it runs.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// WithWallClock sets the clock wait-sql measures its deadline with.
func WithWallClock(c quartz.Clock) Option {
	return func(o *options) { o.wall = c }
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// WithLogger sets the logger shared by the harness and its collaborators.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDs sets the coordinator's peek id and secret key source.
func WithIDs(ids coord.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// CoordTest is one isolated coordinator under test.
//
// All methods belong to a single driver goroutine. The coordinator and the
// dataflow worker run on goroutines owned by the CoordTest until Close.
type CoordTest struct {
	clock       *clock.Logical
	interceptor *feedback.Interceptor
	store       *store.Store
	client      *coord.Client

	dataDir string
	tempDir string

	wall        quartz.Clock
	waitTimeout time.Duration
	verbose     bool
	logger      *slog.Logger

	// uppers tracks the last upper injected by update-upper per object.
	uppers    map[repr.ObjectID]repr.Timestamp
	persisted map[string]*Session
	deferred  map[string][]coord.ExecuteResponse

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// New starts a coordinator and a dataflow worker wired through an
// interceptor. The caller must Close the returned CoordTest.
func New(ctx context.Context, opts ...Option) (*CoordTest, error) {
	o := options{
		verbose:     config.VerboseFromEnv(),
		waitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wall == nil {
		o.wall = quartz.NewReal()
	}
	if o.logger == nil {
		if o.verbose {
			o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LevelFromEnv()}))
		} else {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}

	dataDir, err := os.MkdirTemp("", "coordtest-data-")
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	tempDir, err := os.MkdirTemp("", "coordtest-temp-")
	if err != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("failed to create fixture directory: %w", err)
	}

	clk := clock.New()
	st, err := store.Open(filepath.Join(dataDir, "storage.db"), clk.NowFunc())
	if err != nil {
		os.RemoveAll(dataDir)
		os.RemoveAll(tempDir)
		return nil, err
	}

	ic := feedback.NewInterceptor(o.logger)
	worker := dataflow.New(st, ic.Inbound(), o.logger)
	c := coord.New(coord.Config{
		Store:    st,
		Dataflow: worker,
		Feedback: ic.Outbound(),
		Now:      clk.NowFunc(),
		IDs:      o.ids,
		Logger:   o.logger,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return c.Run(gctx) })

	return &CoordTest{
		clock:       clk,
		interceptor: ic,
		store:       st,
		client:      c.Client(),
		dataDir:     dataDir,
		tempDir:     tempDir,
		wall:        o.wall,
		waitTimeout: o.waitTimeout,
		verbose:     o.verbose,
		logger:      o.logger,
		uppers:      make(map[repr.ObjectID]repr.Timestamp),
		persisted:   make(map[string]*Session),
		deferred:    make(map[string][]coord.ExecuteResponse),
		cancel:      cancel,
		group:       g,
	}, nil
}

// Close stops the coordinator and the worker, then removes the storage and
// fixture directories. Persisted sessions are abandoned.
func (ct *CoordTest) Close() error {
	ct.closeOnce.Do(func() {
		ct.cancel()
		err := ct.group.Wait()
		ct.interceptor.Close()
		err = errors.Join(err, ct.store.Close())
		err = errors.Join(err, os.RemoveAll(ct.dataDir), os.RemoveAll(ct.tempDir))
		ct.closeErr = err
	})
	return ct.closeErr
}

// Now returns the logical time.
func (ct *CoordTest) Now() repr.Timestamp {
	return ct.clock.Now()
}

// TempDir is the fixture directory substituted for Placeholder.
func (ct *CoordTest) TempDir() string {
	return ct.tempDir
}

// TrackedUpper returns the last upper update-upper injected for id.
func (ct *CoordTest) TrackedUpper(id repr.ObjectID) repr.Timestamp {
	return ct.uppers[id]
}

// Pending returns the feedback held back from the coordinator.
func (ct *CoordTest) Pending() []feedback.Message {
	ct.interceptor.Drain()
	return ct.interceptor.Pending()
}
