package merkledb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MigrationHandle controls a migration started with StartMigration.
type MigrationHandle struct {
	db     *DB
	m      Migration
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	status  MigrationStatus
	err     error
	aborted bool
}

// StartMigration runs m in a background goroutine. A migration of the same
// name over the same namespace resumes from its persisted progress; any
// other migration overlapping a running or persisted one fails with
// ErrMigrationConflict.
func (db *DB) StartMigration(ctx context.Context, m Migration) (*MigrationHandle, error) {
	h, err := db.registerMigration(ctx, m)
	if err != nil {
		return nil, err
	}
	go h.run()
	return h, nil
}

// RunMigration runs m to completion in the calling goroutine.
func (db *DB) RunMigration(ctx context.Context, m Migration) (MigrationStatus, error) {
	h, err := db.registerMigration(ctx, m)
	if err != nil {
		return MigrationStatus{}, err
	}
	h.run()
	return h.Status(), h.Wait()
}

func (db *DB) registerMigration(ctx context.Context, m Migration) (*MigrationHandle, error) {
	if m.Name == "" {
		return nil, errors.New("merkledb: migration name is required")
	}
	if m.Step == nil {
		return nil, fmt.Errorf("merkledb: migration %s has no Step", m.Name)
	}
	if m.Verify == nil {
		return nil, fmt.Errorf("merkledb: migration %s has no Verify", m.Name)
	}
	if err := validateUserName(m.Namespace); err != nil {
		return nil, fmt.Errorf("merkledb: migration %s: %w", m.Name, err)
	}
	if db.closed.Load() {
		return nil, ErrClosed
	}

	persisted, err := db.Migrations()
	if err != nil {
		return nil, err
	}

	db.migrationsLock.Lock()
	defer db.migrationsLock.Unlock()
	for ns := range db.migrations {
		if namespacesOverlap(ns, m.Namespace) {
			return nil, fmt.Errorf("%w: %s is being migrated", ErrMigrationConflict, ns)
		}
	}
	for _, st := range persisted {
		if !namespacesOverlap(st.Namespace, m.Namespace) {
			continue
		}
		if st.Namespace != m.Namespace || st.Name != m.Name {
			return nil, fmt.Errorf("%w: %v", ErrMigrationConflict, &st)
		}
	}

	logger := m.Logger
	if logger == nil {
		logger = db.logger
	}
	h := &MigrationHandle{
		db:     db,
		m:      m,
		done:   make(chan struct{}),
		logger: logger.With(slog.String("migration", m.Name), slog.String("ns", m.Namespace)),
		status: MigrationStatus{Name: m.Name, Namespace: m.Namespace},
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	db.migrations[m.Namespace] = h
	return h, nil
}

func namespacesOverlap(a, b string) bool {
	return nameInNamespace(a, b) || nameInNamespace(b, a)
}

// Wait blocks until the migration stops and returns its error. It returns
// ErrMigrationAborted after Abort, and the context's error after
// cancellation, in which case the migration can be resumed later.
func (h *MigrationHandle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted {
		return ErrMigrationAborted
	}
	return h.err
}

func (h *MigrationHandle) Done() <-chan struct{} {
	return h.done
}

// Status returns the latest known descriptor of the migration.
func (h *MigrationHandle) Status() MigrationStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Abort stops the migration and discards everything it has written. The
// namespace keeps its pre-migration content. If the migration has already
// swapped the namespace in, Abort returns ErrMigrationCompleted and changes
// nothing.
func (h *MigrationHandle) Abort() error {
	h.cancel()
	<-h.done
	h.mu.Lock()
	if h.err == nil && h.status.Phase == MigrationCompleted {
		h.mu.Unlock()
		return ErrMigrationCompleted
	}
	h.aborted = true
	h.mu.Unlock()
	return h.db.AbortMigration(h.m.Namespace)
}

func (h *MigrationHandle) setStatus(st MigrationStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = st
}

// AbortMigration stops the migration of ns, if running, deletes its indexes
// and its descriptor.
func (db *DB) AbortMigration(ns string) error {
	db.migrationsLock.Lock()
	h := db.migrations[ns]
	db.migrationsLock.Unlock()
	if h != nil {
		h.cancel()
		<-h.done
	}

	err := db.Write(func(f *Fork) error {
		f.dropMigrated(ns)
		f.deleteMigration(ns)
		return nil
	})
	if err != nil {
		return fmt.Errorf("merkledb: aborting migration of %s: %w", ns, err)
	}
	db.logger.LogAttrs(context.Background(), slog.LevelInfo, "merkledb: migration aborted", slog.String("ns", ns))
	return nil
}

func (h *MigrationHandle) run() {
	defer close(h.done)
	defer func() {
		h.db.migrationsLock.Lock()
		delete(h.db.migrations, h.m.Namespace)
		h.db.migrationsLock.Unlock()
	}()

	start := time.Now()
	err := h.execute()
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	st := h.Status()
	switch {
	case err == nil:
		h.logger.LogAttrs(h.ctx, slog.LevelInfo, "merkledb: migration completed", slog.String("run", st.RunID), slog.Uint64("increments", st.Increments), slog.Duration("dur", time.Since(start)))
	case isCancellation(err):
		h.logger.LogAttrs(context.Background(), slog.LevelInfo, "merkledb: migration paused", slog.String("run", st.RunID), slog.Uint64("increments", st.Increments))
	default:
		h.logger.LogAttrs(context.Background(), slog.LevelError, "merkledb: migration failed", slog.String("run", st.RunID), slog.Any("err", err))
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (h *MigrationHandle) execute() error {
	db := h.db
	var st MigrationStatus
	err := db.Read(func(s *Snapshot) error {
		if p := loadMigration(s, h.m.Namespace); p != nil {
			st = *p
		} else {
			st = MigrationStatus{Name: h.m.Name, Namespace: h.m.Namespace, Phase: MigrationIdle}
		}
		return nil
	})
	if err != nil {
		return err
	}

	st.RunID = uuid.NewString()
	if st.Phase != MigrationFlushing {
		st.Phase = MigrationRunning
		st.Error = ""
	}
	st.Updated = time.Now().UTC()
	err = h.write(func(f *Fork) {
		f.putMigration(&st)
	})
	if err != nil {
		return err
	}
	h.setStatus(st)
	h.logger.LogAttrs(h.ctx, slog.LevelInfo, "merkledb: migration started", slog.String("run", st.RunID), slog.String("phase", st.Phase.String()), slog.Uint64("increments", st.Increments))

	for st.Phase == MigrationRunning {
		if err := h.ctx.Err(); err != nil {
			return err
		}
		if err := h.increment(&st); err != nil {
			if !isCancellation(err) && !errors.Is(err, ErrClosed) {
				h.fail(&st, err)
			}
			return err
		}
	}
	return h.flush(&st)
}

// increment runs one Step and merges its output together with the new
// progress marker.
func (h *MigrationHandle) increment(st *MigrationStatus) error {
	db := h.db
	fk, err := db.Fork()
	if err != nil {
		return err
	}
	defer fk.Discard()

	old, err := Restrict(fk.Base(), Capability{Prefix: h.m.Namespace, Mode: ReadOnly})
	if err != nil {
		return err
	}
	step := &MigrationStep{
		Old:       old,
		New:       &migrationView{fork: fk, ns: h.m.Namespace},
		ctx:       h.ctx,
		progress:  st.Progress,
		increment: st.Increments,
		logger:    h.logger,
	}
	var done bool
	err = safelyCall(func() error {
		var err error
		done, err = h.m.Step(step)
		return err
	})
	if err != nil {
		return err
	}

	next := *st
	next.Progress = step.progress
	next.Increments++
	next.Updated = time.Now().UTC()
	if done {
		next.Phase = MigrationFlushing
	}
	if err := safelyCall(func() error {
		fk.putMigration(&next)
		return nil
	}); err != nil {
		return err
	}
	p, err := fk.IntoPatch()
	if err != nil {
		return err
	}
	if err := h.merge(p); err != nil {
		return err
	}
	*st = next
	h.setStatus(next)
	db.metrics.migrationIncs.WithLabelValues(h.m.Namespace).Inc()
	if db.verbose {
		h.logger.LogAttrs(h.ctx, slog.LevelDebug, "merkledb: migration increment", slog.Uint64("increment", next.Increments), hexAttr("progress", next.Progress))
	}
	return nil
}

// flush verifies the migrated namespace and swaps it in with a single merge.
// The swap only merges if the namespace is still exactly as verified;
// otherwise verification runs again over the newer state.
func (h *MigrationHandle) flush(st *MigrationStatus) error {
	for {
		err := h.verifyAndSwap(st)
		if !errors.Is(err, errStalePatch) {
			if err != nil {
				return err
			}
			break
		}
		h.logger.LogAttrs(h.ctx, slog.LevelInfo, "merkledb: namespace changed during verification, verifying again", slog.String("run", st.RunID))
		if err := h.ctx.Err(); err != nil {
			return err
		}
	}
	st.Phase = MigrationCompleted
	st.Updated = time.Now().UTC()
	h.setStatus(*st)
	return nil
}

func (h *MigrationHandle) verifyAndSwap(st *MigrationStatus) error {
	ns := h.m.Namespace
	fk, err := h.db.Fork()
	if err != nil {
		return err
	}
	defer fk.Discard()
	snap := fk.Base()

	v := &MigrationVerification{
		New: &migrationView{snap: snap, ns: ns},
	}
	v.Old, err = Restrict(snap, Capability{Prefix: ns, Mode: ReadOnly})
	if err != nil {
		return err
	}
	var digest uint64
	g, _ := errgroup.WithContext(h.ctx)
	g.Go(func() error {
		return safelyCall(func() error {
			v.OldHash = namespaceHash(snap, ns, false)
			return nil
		})
	})
	g.Go(func() error {
		return safelyCall(func() error {
			v.NewHash = namespaceHash(snap, ns, true)
			return nil
		})
	})
	g.Go(func() error {
		return safelyCall(func() error {
			digest = namespaceDigest(snap, ns)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	err = safelyCall(func() error {
		return h.m.Verify(v)
	})
	if err != nil {
		verr := &MigrationVerificationError{
			Migration: h.m.Name,
			Namespace: ns,
			OldHash:   v.OldHash,
			NewHash:   v.NewHash,
			Err:       err,
		}
		h.fail(st, verr)
		return verr
	}

	err = safelyCall(func() error {
		fk.swapNamespace(ns)
		fk.deleteMigration(ns)
		return nil
	})
	if err != nil {
		return err
	}
	p, err := fk.IntoPatch()
	if err != nil {
		return err
	}
	p.precondition = func(s *Snapshot) error {
		if namespaceDigest(s, ns) != digest {
			return errStalePatch
		}
		return nil
	}
	return h.merge(p)
}

// fail persists the Failed phase. The progress marker is kept, so running
// the migration again resumes from the last merged increment.
func (h *MigrationHandle) fail(st *MigrationStatus, cause error) {
	st.Phase = MigrationFailed
	st.Error = cause.Error()
	st.Updated = time.Now().UTC()
	h.setStatus(*st)
	err := h.write(func(f *Fork) {
		f.putMigration(st)
	})
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelError, "merkledb: cannot persist migration failure", slog.Any("err", err))
	}
}

// merge retries merges rejected by RejectConcurrentMerges until the
// migration's context is done.
func (h *MigrationHandle) merge(p *Patch) error {
	for {
		err := h.db.Merge(p)
		if !errors.Is(err, ErrMergeConflict) {
			return err
		}
		select {
		case <-h.ctx.Done():
			return h.ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (h *MigrationHandle) write(fn func(f *Fork)) error {
	fk, err := h.db.Fork()
	if err != nil {
		return err
	}
	defer fk.Discard()
	err = safelyCall(func() error {
		fn(fk)
		return nil
	})
	if err != nil {
		return err
	}
	p, err := fk.IntoPatch()
	if err != nil {
		return err
	}
	return h.merge(p)
}
