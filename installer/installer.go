// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/ocs-custodian/archive"
	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/fetch"
	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/record"
	"github.com/stacklok/ocs-custodian/router"
	"github.com/stacklok/ocs-custodian/validation/name"
)

const (
	stagingPattern = name.ReservedPrefix + "staging-*"
	probePattern   = name.ReservedPrefix + "probe-*"
	stagedName     = "item"
	backupName     = "previous"

	// maxRenameAttempts bounds the search for a free "-N" suffix.
	maxRenameAttempts = 1000
)

// Installer places verified artifacts at their routed destination and keeps
// the record store in step with the filesystem.
type Installer struct {
	records record.Store
	locks   *keyedMutex
	lockDir string
	limits  archive.Limits
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Installer.
type Option func(*Installer)

// WithLockDir enables cross-process install locks stored under dir.
func WithLockDir(dir string) Option {
	return func(i *Installer) {
		i.lockDir = dir
	}
}

// WithArchiveLimits sets the extraction limits.
func WithArchiveLimits(l archive.Limits) Option {
	return func(i *Installer) {
		i.limits = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// WithClock sets the clock used for InstalledAt.
func WithClock(now func() time.Time) Option {
	return func(i *Installer) {
		i.now = now
	}
}

// New creates an Installer writing records to records.
func New(records record.Store, opts ...Option) *Installer {
	i := &Installer{
		records: records,
		locks:   newKeyedMutex(),
		limits:  archive.DefaultLimits(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Records returns the record store.
func (i *Installer) Records() record.Store {
	return i.records
}

// Lock serializes work on the item identified by key, within the process and
// across processes sharing the lock directory.
func (i *Installer) Lock(ctx context.Context, key record.Key) (func(), error) {
	return i.lock(ctx, "item:"+key.String())
}

// lockInstallDir serializes name selection and the final move within dir, which
// items with different keys may share.
func (i *Installer) lockInstallDir(ctx context.Context, dir string) (func(), error) {
	return i.lock(ctx, "dir:"+filepath.Clean(dir))
}

func (i *Installer) lock(ctx context.Context, lockKey string) (func(), error) {
	unlock, err := i.locks.lock(ctx, lockKey)
	if err != nil {
		return nil, ocserr.FromContext(err, ocserr.KindInternal)
	}
	unlockFile, err := fileLock(ctx, i.lockDir, lockKey)
	if err != nil {
		unlock()
		return nil, ocserr.FromContext(err, ocserr.KindFilesystem)
	}
	return func() {
		unlockFile()
		unlock()
	}, nil
}

// placement is the outcome of collision handling.
type placement struct {
	final    string
	replaces bool
}

// Install places a at target and records it. The artifact is copied, not
// moved; the caller still owns and discards it. Nothing at the final path
// changes unless the new content is fully staged next to it, and a failure
// after that point restores the previous content.
func (i *Installer) Install(
	ctx context.Context, a *fetch.Artifact, target *router.Target, desc *content.Descriptor,
) (*record.Record, error) {
	key := record.KeyOf(desc)
	logger := i.logger.With(logging.KeyProvider, key.ProviderHost, logging.KeyItemID, key.ItemID)

	unlock, err := i.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := i.records.Get(ctx, key)
	if errors.Is(err, record.ErrNotFound) {
		stored = nil
	} else if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("reading install record: %w", err))
	}

	format := archive.FormatRaw
	if target.Strategy == router.StrategyExtractArchive {
		format, err = i.checkArchive(ctx, a.Path)
		if err != nil {
			return nil, err
		}
	}

	entryName, err := installName(target.Strategy, desc)
	if err != nil {
		return nil, err
	}

	dir, existing, err := destination(target, stored)
	if err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(dir, stagingPattern)
	if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating staging directory in %s: %w", dir, err))
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logger.Warn("removing staging directory", logging.KeyPath, staging, logging.KeyError, err)
		}
	}()

	staged := filepath.Join(staging, stagedName)
	if err := i.stage(ctx, a, target.Strategy, format, desc, staged); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, ocserr.FromContext(err, ocserr.KindInternal)
	}

	unlockDir, err := i.lockInstallDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	defer unlockDir()

	p, err := plan(target, existing, dir, entryName)
	if err != nil {
		return nil, err
	}

	backup := ""
	if p.replaces {
		backup = filepath.Join(staging, backupName)
		if err := os.Rename(p.final, backup); err != nil {
			return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("moving aside %s: %w", p.final, err))
		}
	}
	if err := os.Rename(staged, p.final); err != nil {
		restore(logger, backup, p.final)
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("moving into place %s: %w", p.final, err))
	}

	rec := &record.Record{
		ItemID:         desc.ItemID,
		ProviderHost:   desc.ProviderHost,
		InstalledPath:  filepath.Clean(p.final),
		InstalledAt:    i.now().UTC(),
		Category:       target.Category,
		Title:          desc.Title,
		Checksum:       desc.Checksum,
		ArtifactDigest: a.Digest,
		SizeBytes:      a.Size,
		FileName:       desc.FileName,
		Previous:       previousPaths(stored, p.final),
	}
	// The record write is not cancellable: the files are already in place.
	if err := i.records.Put(context.WithoutCancel(ctx), rec); err != nil {
		if rmErr := os.RemoveAll(p.final); rmErr != nil {
			logger.Error("removing install after record failure", logging.KeyPath, p.final, logging.KeyError, rmErr)
		}
		restore(logger, backup, p.final)
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("writing install record: %w", err))
	}

	logger.Info("item installed", logging.KeyPath, rec.InstalledPath, "strategy", string(target.Strategy))
	return rec, nil
}

func restore(logger *slog.Logger, backup, final string) {
	if backup == "" {
		return
	}
	if err := os.Rename(backup, final); err != nil {
		logger.Error("restoring previous install", logging.KeyPath, final, logging.KeyError, err)
	}
}

// checkArchive sniffs the artifact and, for archives, validates every entry
// before anything is staged.
func (i *Installer) checkArchive(ctx context.Context, path string) (archive.Format, error) {
	format, err := archive.Detect(path)
	if err != nil {
		return "", archiveError(err)
	}
	if !format.IsArchive() {
		return format, nil
	}
	if err := archive.Validate(ctx, path, format, i.limits); err != nil {
		return "", archiveError(err)
	}
	return format, nil
}

func archiveError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ocserr.FromContext(err, ocserr.KindInternal)
	case errors.Is(err, archive.ErrPathTraversal), errors.Is(err, archive.ErrDisallowedEntry):
		return ocserr.New(ocserr.KindPathTraversalRejected, err)
	case errors.Is(err, archive.ErrTooLarge), errors.Is(err, archive.ErrCorrupt),
		errors.Is(err, archive.ErrUnsupportedFormat):
		return ocserr.New(ocserr.KindInvalidArchive, err)
	default:
		return ocserr.New(ocserr.KindFilesystem, err)
	}
}

// installName is the name of the directory or file the item occupies.
func installName(strategy router.Strategy, desc *content.Descriptor) (string, error) {
	candidate := desc.ItemID
	if strategy != router.StrategyExtractArchive && desc.FileName != "" {
		candidate = desc.FileName
	}
	if err := name.ValidateComponent(candidate); err != nil {
		return "", ocserr.New(ocserr.KindPathTraversalRejected, fmt.Errorf("install name: %w", err))
	}
	if name.IsReserved(candidate) {
		return "", ocserr.Newf(ocserr.KindPathTraversalRejected, "install name %q is reserved", candidate)
	}
	return candidate, nil
}

// destination picks the directory the item goes into and returns the
// existing record that still applies. A record whose path is gone counts as
// not installed.
func destination(target *router.Target, existing *record.Record) (string, *record.Record, error) {
	if existing != nil && !exists(existing.InstalledPath) {
		existing = nil
	}

	if existing != nil {
		switch target.Collision {
		case router.CollisionAbort:
			return "", nil, ocserr.Newf(ocserr.KindAlreadyInstalled, "%s is already installed at %s",
				existing.Key(), existing.InstalledPath)
		case router.CollisionOverwrite:
			dir := filepath.Dir(existing.InstalledPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating %s: %w", dir, err))
			}
			return dir, existing, nil
		}
	}

	dir, err := firstWritable(target.Directories())
	if err != nil {
		return "", nil, err
	}
	return dir, existing, nil
}

// plan applies the collision policy within dir. The caller holds the lock on
// dir until the move, so the chosen name stays free.
func plan(target *router.Target, existing *record.Record, dir, entryName string) (*placement, error) {
	if existing != nil && target.Collision == router.CollisionOverwrite {
		return &placement{final: existing.InstalledPath, replaces: true}, nil
	}

	final := filepath.Join(dir, entryName)
	if !exists(final) {
		return &placement{final: final}, nil
	}

	switch target.Collision {
	case router.CollisionAbort:
		return nil, ocserr.Newf(ocserr.KindAlreadyInstalled, "%s already exists", final)
	case router.CollisionOverwrite:
		return &placement{final: final, replaces: true}, nil
	default:
		free, err := freeName(dir, entryName)
		if err != nil {
			return nil, err
		}
		return &placement{final: filepath.Join(dir, free)}, nil
	}
}

// firstWritable creates and probes the candidate directories in order.
func firstWritable(dirs []string) (string, error) {
	var errs []error
	for _, dir := range dirs {
		if err := probe(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		return dir, nil
	}
	return "", ocserr.New(ocserr.KindFilesystem,
		fmt.Errorf("no writable install directory: %w", errors.Join(errs...)))
}

func probe(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, probePattern)
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

// freeName finds "<stem>-N<ext>" that does not exist in dir, starting at 2.
func freeName(dir, entryName string) (string, error) {
	ext := filepath.Ext(entryName)
	stem := strings.TrimSuffix(entryName, ext)
	if stem == "" {
		stem, ext = entryName, ""
	}
	for n := 2; n < maxRenameAttempts; n++ {
		candidate := stem + "-" + strconv.Itoa(n) + ext
		if !exists(filepath.Join(dir, candidate)) {
			return candidate, nil
		}
	}
	return "", ocserr.Newf(ocserr.KindFilesystem, "no free name for %s in %s", entryName, dir)
}

// previousPaths carries forward the installs of stored that remain on disk
// next to final.
func previousPaths(stored *record.Record, final string) []string {
	if stored == nil {
		return nil
	}
	var out []string
	for _, p := range stored.Paths() {
		if p != final && exists(p) {
			out = append(out, p)
		}
	}
	return out
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// stage materializes the artifact at staged.
func (i *Installer) stage(
	ctx context.Context, a *fetch.Artifact, strategy router.Strategy, format archive.Format,
	desc *content.Descriptor, staged string,
) error {
	switch {
	case strategy == router.StrategyExtractArchive && format.IsArchive():
		if err := os.Mkdir(staged, 0o755); err != nil {
			return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating %s: %w", staged, err))
		}
		if err := archive.Extract(ctx, a.Path, format, staged, i.limits); err != nil {
			return archiveError(err)
		}
		return nil
	case strategy == router.StrategyExtractArchive:
		// Not an archive: the file goes inside the item directory.
		fileName := desc.FileName
		if fileName == "" || name.ValidateComponent(fileName) != nil {
			fileName = desc.ItemID
		}
		if err := os.Mkdir(staged, 0o755); err != nil {
			return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating %s: %w", staged, err))
		}
		return copyFile(a.Path, filepath.Join(staged, fileName), 0o644)
	case strategy == router.StrategyRunScript:
		return copyFile(a.Path, staged, 0o755)
	default:
		return copyFile(a.Path, staged, 0o644)
	}
}

func copyFile(src, dst string, mode fs.FileMode) error {
	// #nosec G304 - src is the artifact owned by the caller
	in, err := os.Open(src)
	if err != nil {
		return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("opening artifact: %w", err))
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating %s: %w", dst, err))
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("copying to %s: %w", dst, err))
	}
	if err := out.Close(); err != nil {
		return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("closing %s: %w", dst, err))
	}
	// Apply mode explicitly; the umask may have narrowed it.
	if err := os.Chmod(dst, mode); err != nil {
		return ocserr.New(ocserr.KindFilesystem, fmt.Errorf("setting mode of %s: %w", dst, err))
	}
	return nil
}

// Uninstall deletes the record for key and, when purge is set, the installed
// files. Missing files are not an error.
func (i *Installer) Uninstall(ctx context.Context, key record.Key, purge bool) (*record.Record, error) {
	unlock, err := i.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := i.records.Get(ctx, key)
	if errors.Is(err, record.ErrNotFound) {
		return nil, ocserr.New(ocserr.KindInternal, err)
	}
	if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("reading install record: %w", err))
	}

	if purge {
		for _, p := range rec.Paths() {
			if err := os.RemoveAll(p); err != nil {
				return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("removing %s: %w", p, err))
			}
		}
	}
	if err := i.records.Delete(ctx, key); err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("deleting install record: %w", err))
	}
	i.logger.Info("item uninstalled", logging.KeyProvider, key.ProviderHost, logging.KeyItemID, key.ItemID,
		logging.KeyPath, rec.InstalledPath, "purged", purge)
	return rec, nil
}
