// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/stacklok/ocs-custodian/cache"
	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/fetch"
	"github.com/stacklok/ocs-custodian/installer"
	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/ocslink"
	"github.com/stacklok/ocs-custodian/record"
	"github.com/stacklok/ocs-custodian/router"
)

const (
	// DefaultMaxConcurrent bounds the runs executing at the same time.
	DefaultMaxConcurrent = 4
	// DefaultRetainedRuns is the number of finished runs kept for lookup.
	DefaultRetainedRuns = 256
)

// ReinstallPolicy decides what a run does when the item is already installed.
type ReinstallPolicy string

// Reinstall policies.
const (
	// ReinstallSkip completes with the existing install without asking the
	// provider.
	ReinstallSkip ReinstallPolicy = "skip"
	// ReinstallVerify resolves the item and keeps the existing install when
	// the provider checksum equals the recorded one.
	ReinstallVerify ReinstallPolicy = "verify"
	// ReinstallAlways installs again and lets the collision policy decide.
	ReinstallAlways ReinstallPolicy = "always"
)

// ParseReinstallPolicy parses a policy name. The empty string is
// ReinstallVerify.
func ParseReinstallPolicy(s string) (ReinstallPolicy, error) {
	switch p := ReinstallPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ReinstallVerify, nil
	case ReinstallSkip, ReinstallVerify, ReinstallAlways:
		return p, nil
	default:
		return "", fmt.Errorf("unknown reinstall policy %q", s)
	}
}

// Resolver turns links into descriptors.
type Resolver interface {
	Resolve(ctx context.Context, link *ocslink.Link) (*content.Descriptor, error)
}

// Downloader fetches artifacts to temporary files.
type Downloader interface {
	Download(ctx context.Context, req fetch.Request) (*fetch.Artifact, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache stores verified artifacts in c and reuses them when the provider
// checksum is unchanged.
func WithCache(c *cache.Store) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithMaxConcurrent bounds the runs executing at the same time.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = int64(n)
		}
	}
}

// WithReinstallPolicy sets the reinstall policy.
func WithReinstallPolicy(p ReinstallPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithMetrics sets the metrics the orchestrator reports to.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTempDir sets the directory artifacts taken from the cache are copied to.
func WithTempDir(dir string) Option {
	return func(o *Orchestrator) {
		o.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// Orchestrator drives links through parsing, resolving, routing, fetching,
// verifying and installing. Stages of a run are sequential; runs are
// concurrent. A link submitted while a run for it is in progress joins that
// run. Failures are never retried.
type Orchestrator struct {
	resolver      Resolver
	router        *router.Router
	downloader    Downloader
	installer     *installer.Installer
	records       record.Store
	cache         *cache.Store
	policy        ReinstallPolicy
	maxConcurrent int64
	sem           *semaphore.Weighted
	metrics       *Metrics
	tempDir       string
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	active   map[string]*Run
	runs     map[string]*Run
	finished []string
	wg       sync.WaitGroup
}

// New creates an Orchestrator.
func New(
	resolver Resolver, rt *router.Router, downloader Downloader, inst *installer.Installer, opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		resolver:      resolver,
		router:        rt,
		downloader:    downloader,
		installer:     inst,
		records:       inst.Records(),
		policy:        ReinstallVerify,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default(),
		now:           time.Now,
		active:        make(map[string]*Run),
		runs:          make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	o.sem = semaphore.NewWeighted(o.maxConcurrent)
	return o
}

// Submit starts a run for raw and returns it without waiting. When a run for
// the same link is in progress, that run is returned instead.
func (o *Orchestrator) Submit(raw string) *Run {
	link, parseErr := ocslink.Parse(raw)
	key := raw
	if parseErr == nil {
		key = link.String()
	}

	o.mu.Lock()
	if parseErr == nil {
		if run, ok := o.active[key]; ok {
			o.mu.Unlock()
			o.logger.Debug("joining run in progress", logging.KeyRunID, run.ID(), "link", key)
			return run
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := newRun(uuid.NewString(), key, cancel, o.now())
	o.runs[run.id] = run
	if parseErr == nil {
		o.active[key] = run
	}
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.started()
	go o.execute(ctx, run, link, parseErr)
	return run
}

// Install submits raw and waits for the run to end. When ctx is done first
// the run is cancelled. The returned error is the outcome's error.
func (o *Orchestrator) Install(ctx context.Context, raw string) (*Outcome, error) {
	run := o.Submit(raw)
	select {
	case <-run.Done():
	case <-ctx.Done():
		run.Cancel()
		<-run.Done()
	}
	out := run.Outcome()
	return out, out.Err
}

// Run returns the run with the given id. Finished runs are kept for a while.
func (o *Orchestrator) Run(id string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[id]
	return run, ok
}

// Runs returns the known runs, oldest first.
func (o *Orchestrator) Runs() []*Run {
	o.mu.Lock()
	out := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, r)
	}
	o.mu.Unlock()
	slices.SortFunc(out, func(a, b *Run) int {
		return cmp.Or(a.created.Compare(b.created), strings.Compare(a.id, b.id))
	})
	return out
}

// Close cancels the runs in progress and waits for them to end.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, run := range o.active {
		run.Cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Plan resolves and routes raw without downloading anything.
func (o *Orchestrator) Plan(ctx context.Context, raw string) (*content.Descriptor, *router.Target, error) {
	link, err := ocslink.Parse(raw)
	if err != nil {
		return nil, nil, ocserr.WithStage(err, ocserr.StageParsing)
	}
	desc, err := o.resolver.Resolve(ctx, link)
	if err != nil {
		return nil, nil, ocserr.WithStage(err, ocserr.StageResolving)
	}
	target, err := o.router.Route(desc)
	if err != nil {
		return desc, nil, ocserr.WithStage(err, ocserr.StageRouting)
	}
	return desc, target, nil
}

// Records returns the install records, ordered by key.
func (o *Orchestrator) Records(ctx context.Context) ([]*record.Record, error) {
	recs, err := o.records.List(ctx)
	if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("listing install records: %w", err))
	}
	return recs, nil
}

// Cached reports whether the artifact rec was installed from is still in the
// artifact cache.
func (o *Orchestrator) Cached(ctx context.Context, rec *record.Record) bool {
	if o.cache == nil || rec.ArtifactDigest == "" {
		return false
	}
	ok, err := o.cache.Has(ctx, cache.Descriptor(rec.ArtifactDigest, rec.SizeBytes))
	if err != nil {
		o.logger.WarnContext(ctx, "checking artifact cache", logging.KeyProvider, rec.ProviderHost,
			logging.KeyItemID, rec.ItemID, logging.KeyError, err)
		return false
	}
	return ok
}

// Forget removes the record of key and its cached artifact. With purge the
// installed files are deleted as well.
func (o *Orchestrator) Forget(ctx context.Context, key record.Key, purge bool) (*record.Record, error) {
	rec, err := o.installer.Uninstall(ctx, key, purge)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		if err := o.cache.Forget(ctx, key.String()); err != nil {
			o.logger.WarnContext(ctx, "removing cached artifact", logging.KeyProvider, key.ProviderHost,
				logging.KeyItemID, key.ItemID, logging.KeyError, err)
		}
	}
	return rec, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, link *ocslink.Link, parseErr error) {
	defer o.wg.Done()
	defer run.cancel()

	logger := o.logger.With(logging.KeyRunID, run.id)
	outcome := o.drive(ctx, run, link, parseErr, logger)

	o.mu.Lock()
	if o.active[run.link] == run {
		delete(o.active, run.link)
	}
	o.finished = append(o.finished, run.id)
	if len(o.finished) > DefaultRetainedRuns {
		delete(o.runs, o.finished[0])
		o.finished = o.finished[1:]
	}
	o.mu.Unlock()

	o.metrics.finished(outcome, o.now().Sub(run.created).Seconds())
	run.finish(outcome)

	switch outcome.State {
	case StateCompleted:
		logger.Info("run completed", logging.KeyPath, outcome.Record.InstalledPath, "reused", outcome.Reused)
	case StateCancelled:
		logger.Info("run cancelled", logging.KeyStage, outcome.Stage())
	default:
		logger.Warn("run failed", logging.KeyStage, outcome.Stage(),
			"kind", ocserr.KindOf(outcome.Err), logging.KeyError, outcome.Err)
	}
}

// fail attributes err to the stage of state s.
func fail(s State, err error) *Outcome {
	err = ocserr.WithStage(err, s.stage())
	if ocserr.Is(err, ocserr.KindCancelled) {
		return &Outcome{State: StateCancelled, Err: err}
	}
	return &Outcome{State: StateFailed, Err: err}
}

// checkpoint ends the run when ctx is done before state s starts.
func checkpoint(ctx context.Context, s State) *Outcome {
	if err := ctx.Err(); err != nil {
		return fail(s, ocserr.FromContext(err, ocserr.KindInternal))
	}
	return nil
}

func (o *Orchestrator) drive(
	ctx context.Context, run *Run, link *ocslink.Link, parseErr error, logger *slog.Logger,
) *Outcome {
	if parseErr != nil {
		return fail(StateParsing, parseErr)
	}
	run.progress(1)
	logger = logger.With(logging.KeyProvider, link.ProviderHost, logging.KeyItemID, link.ItemID)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fail(StateResolving, ocserr.FromContext(err, ocserr.KindInternal))
	}
	defer o.sem.Release(1)

	key := record.Key{ProviderHost: link.ProviderHost, ItemID: link.ItemID}

	// Resolving
	if out := checkpoint(ctx, StateResolving); out != nil {
		return out
	}
	run.enter(StateResolving)
	if o.policy == ReinstallSkip {
		existing, err := o.installed(ctx, key)
		if err != nil {
			return fail(StateResolving, err)
		}
		if existing != nil {
			logger.DebugContext(ctx, "already installed, skipping")
			return &Outcome{State: StateCompleted, Record: existing, Reused: true}
		}
	}
	desc, err := o.resolver.Resolve(ctx, link)
	if err != nil {
		return fail(StateResolving, err)
	}
	if o.policy == ReinstallVerify && !desc.Checksum.IsZero() {
		existing, err := o.installed(ctx, record.KeyOf(desc))
		if err != nil {
			return fail(StateResolving, err)
		}
		if existing != nil && sameChecksum(existing.Checksum, desc.Checksum) {
			logger.DebugContext(ctx, "installed copy matches provider checksum")
			return &Outcome{State: StateCompleted, Record: existing, Reused: true}
		}
	}
	run.progress(1)

	// Routing
	if out := checkpoint(ctx, StateRouting); out != nil {
		return out
	}
	run.enter(StateRouting)
	target, err := o.router.Route(desc)
	if err != nil {
		return fail(StateRouting, err)
	}
	run.progress(1)

	// Fetching
	if out := checkpoint(ctx, StateFetching); out != nil {
		return out
	}
	run.enter(StateFetching)
	artifact, fromCache, err := o.obtain(ctx, run, desc, logger)
	if err != nil {
		return fail(StateFetching, err)
	}
	defer func() {
		if err := artifact.Discard(); err != nil {
			logger.Warn("removing artifact", logging.KeyPath, artifact.Path, logging.KeyError, err)
		}
	}()
	run.progress(1)

	// Verifying
	if out := checkpoint(ctx, StateVerifying); out != nil {
		return out
	}
	run.enter(StateVerifying)
	if err := fetch.Verify(artifact, desc.Checksum); err != nil {
		return fail(StateVerifying, err)
	}
	if o.cache != nil && !fromCache {
		if _, err := o.cache.Put(ctx, desc.Key(), artifact, desc.FileName); err != nil {
			logger.WarnContext(ctx, "caching artifact", logging.KeyError, err)
		}
	}
	run.progress(1)

	// Installing
	if out := checkpoint(ctx, StateInstalling); out != nil {
		return out
	}
	run.enter(StateInstalling)
	rec, err := o.installer.Install(ctx, artifact, target, desc)
	if err != nil {
		return fail(StateInstalling, err)
	}
	return &Outcome{State: StateCompleted, Record: rec}
}

// obtain takes the artifact from the cache when its checksum matches the
// provider's, and downloads it otherwise.
func (o *Orchestrator) obtain(
	ctx context.Context, run *Run, desc *content.Descriptor, logger *slog.Logger,
) (*fetch.Artifact, bool, error) {
	if a := o.fromCache(ctx, desc, logger); a != nil {
		o.metrics.cacheHits.Inc()
		return a, true, nil
	}

	var last int64
	a, err := o.downloader.Download(ctx, fetch.Request{
		URL:       desc.DownloadURL,
		Checksum:  desc.Checksum,
		SizeBytes: desc.SizeBytes,
		Progress: func(received, total int64) {
			o.metrics.downloadedBytes.Add(float64(received - last))
			last = received
			if total > 0 {
				run.progress(float64(received) / float64(total))
			}
		},
	})
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// fromCache returns nil on any miss. Cache failures never fail a run.
func (o *Orchestrator) fromCache(ctx context.Context, desc *content.Descriptor, logger *slog.Logger) *fetch.Artifact {
	if o.cache == nil || desc.Checksum.IsZero() {
		return nil
	}
	entry, err := o.cache.Lookup(ctx, desc.Key())
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.WarnContext(ctx, "reading artifact cache", logging.KeyError, err)
		}
		return nil
	}
	if !sameChecksum(entry.Checksum, desc.Checksum) {
		return nil
	}
	path, err := o.cache.Materialize(ctx, entry.Layer, o.tempDir)
	if err != nil {
		logger.WarnContext(ctx, "materializing cached artifact", logging.KeyError, err)
		return nil
	}
	a, err := fetch.Adopt(path, desc.Checksum)
	if err != nil {
		_ = os.Remove(path)
		logger.WarnContext(ctx, "reading cached artifact", logging.KeyError, err)
		return nil
	}
	logger.DebugContext(ctx, "using cached artifact", logging.KeyPath, path)
	return a
}

// installed returns the record of key when its installed path still exists.
func (o *Orchestrator) installed(ctx context.Context, key record.Key) (*record.Record, error) {
	rec, err := o.records.Get(ctx, key)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("reading install record: %w", err))
	}
	if _, err := os.Lstat(rec.InstalledPath); err != nil {
		return nil, nil
	}
	return rec, nil
}

func sameChecksum(a, b content.Checksum) bool {
	return !a.IsZero() && a.Algorithm == b.Algorithm && strings.EqualFold(a.Hex, b.Hex)
}
