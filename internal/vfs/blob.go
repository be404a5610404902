package vfs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hpungsan/brsave/internal/compress"
	"github.com/hpungsan/brsave/internal/errors"
)

// blobEntry memoizes one blob. raw is set by Preload and released once
// the content is decoded.
type blobEntry struct {
	mu   sync.Mutex
	raw  *RawBlob
	data []byte
	done bool
}

// Content returns the decompressed bytes of a blob. The blob source is
// asked for each content id at most once and decompression runs at most
// once; concurrent callers wait for the first. Failures are not cached.
func (fs *FS) Content(ctx context.Context, contentID int64) ([]byte, error) {
	e, _ := fs.blobs.LoadOrStore(contentID, &blobEntry{})
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.data, nil
	}

	if e.raw == nil {
		if fs.source == nil {
			return nil, errors.NewNotFound("blob", contentID)
		}
		fs.log.Debug().Int64("content_id", contentID).Msg("blob cache miss")
		raws, err := fs.source.Blobs(ctx, []int64{contentID})
		if err != nil {
			return nil, fmt.Errorf("fetch blob %d: %w", contentID, err)
		}
		for i := range raws {
			if raws[i].ID == contentID {
				e.raw = &raws[i]
				break
			}
		}
		if e.raw == nil {
			return nil, errors.NewNotFound("blob", contentID)
		}
	}

	data, err := decodeBlob(e.raw)
	if err != nil {
		return nil, err
	}
	e.data, e.done, e.raw = data, true, nil
	return data, nil
}

// decodeBlob decompresses a raw blob, checking the declared size.
func decodeBlob(raw *RawBlob) ([]byte, error) {
	size := -1
	if raw.Compression != compress.None && raw.SizeUncompressed > 0 {
		size = int(raw.SizeUncompressed)
	}
	data, err := compress.Decode(raw.Compression, raw.Content, size)
	if err != nil {
		if sErr, ok := errors.As(err); ok {
			return nil, &errors.SaveError{
				Code:    sErr.Code,
				Message: fmt.Sprintf("blob %d: %s", raw.ID, sErr.Message),
				Details: map[string]any{"content_id": raw.ID},
				Err:     err,
			}
		}
		return nil, err
	}
	return data, nil
}

// Preload fetches every blob referenced by a file visible at ts that is
// not loaded yet, in a single source call. Decompression still happens
// lazily in Content.
func (fs *FS) Preload(ctx context.Context, ts int64) (int, error) {
	if fs.source == nil {
		return 0, nil
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, f := range fs.index(ts).files {
		if seen[f.ContentID] {
			continue
		}
		seen[f.ContentID] = true
		if e, ok := fs.blobs.Load(f.ContentID); ok {
			e.mu.Lock()
			loaded := e.done || e.raw != nil
			e.mu.Unlock()
			if loaded {
				continue
			}
		}
		ids = append(ids, f.ContentID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	raws, err := fs.source.Blobs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("preload blobs: %w", err)
	}
	n := 0
	for i := range raws {
		raw := raws[i]
		e, _ := fs.blobs.LoadOrStore(raw.ID, &blobEntry{})
		e.mu.Lock()
		if !e.done && e.raw == nil {
			e.raw = &raw
			n++
		}
		e.mu.Unlock()
	}
	fs.log.Debug().Int("requested", len(ids)).Int("loaded", n).Msg("preloaded blobs")
	return n, nil
}
