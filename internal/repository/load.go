package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/codec"
	"github.com/MrWong99/soundboard/internal/observe"
)

// Load reads the collection from the metadata store, replacing memory.
//
// A missing record yields an empty collection. When the store fails, or the
// record cannot be decoded and discarding is not enabled, the collection is
// emptied, the state becomes [StateError], and the error is returned.
// Subscribers are notified either way.
func (r *Repository) Load(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "repository.Load")
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, "Load", err) }()

	r.collMu.Lock()
	defer r.collMu.Unlock()

	r.mu.Lock()
	r.state = StateLoading
	r.mu.Unlock()

	avatars, err := r.read(ctx)

	var released []string
	r.mu.Lock()
	if err != nil {
		r.commitLocked([]avatar.Avatar{})
		r.state = StateError
		r.lastErr = err
	} else {
		r.savedGen = r.commitLocked(avatars)
		r.state = StateReady
		r.lastErr = nil
		released = r.releaseDeferredLocked()
	}
	if avatar.IndexOf(r.avatars, r.selected) < 0 {
		r.selected = ""
	}
	n, v := len(r.avatars), countVoices(r.avatars)
	r.mu.Unlock()

	r.metrics.RecordCollection(ctx, n, v)
	r.schedule(ctx, released)
	if err != nil {
		observe.Logger(ctx).Error("loading avatar collection failed", "err", err)
	} else {
		observe.Logger(ctx).Info("avatar collection loaded", "avatars", n, "voices", v)
	}
	r.notify("Load")
	return err
}

func (r *Repository) read(ctx context.Context) ([]avatar.Avatar, error) {
	sctx, cancel := r.storageCtx(ctx)
	start := time.Now()
	doc, err := r.meta.Load(sctx)
	cancel()
	r.metrics.ObserveStorage(ctx, "metadata", "load", start, err)

	if err != nil && !errors.Is(err, avatar.ErrDecode) {
		return nil, fmt.Errorf("repository: load: %w: %w", avatar.ErrPersistence, err)
	}
	if err == nil && doc == nil {
		return []avatar.Avatar{}, nil
	}

	var (
		avatars []avatar.Avatar
		rep     codec.Report
	)
	if err == nil {
		avatars, rep, err = codec.Decode(doc)
	}
	if err != nil {
		if !r.discardCorrupt {
			return nil, fmt.Errorf("repository: load: %w", err)
		}
		observe.Logger(ctx).Warn("discarding undecodable avatar collection", "err", err)
		cctx, cancel := r.storageCtx(ctx)
		defer cancel()
		if cerr := r.meta.Clear(cctx); cerr != nil {
			return nil, fmt.Errorf("repository: discard corrupt record: %w: %w", avatar.ErrPersistence, cerr)
		}
		return []avatar.Avatar{}, nil
	}

	if !rep.Clean() {
		r.metrics.RecordDecodeRepairs(ctx, rep.Skipped, rep.Defaulted)
		observe.Logger(ctx).Warn("repaired damaged records while loading",
			"skipped", rep.Skipped, "defaulted", rep.Defaulted)
	}
	return avatars, nil
}
