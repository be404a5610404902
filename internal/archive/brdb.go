package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/brsave/internal/compress"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/vfs"
)

// blobBatchSize bounds the number of ids per IN (...) query.
const blobBatchSize = 500

// brdb reads a SQLite save. Blobs are queried lazily by id.
type brdb struct {
	db *sql.DB
}

// openBrdbDB opens the database read-only.
func openBrdbDB(path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro&_pragma=busy_timeout(5000)"}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func openBrdb(ctx context.Context, s *Save, opts []vfs.Option) (counts, error) {
	db, err := openBrdbDB(s.Path)
	if err != nil {
		return counts{}, errors.NewInternal(err)
	}
	src := &brdb{db: db}
	fs := vfs.New(src, opts...)

	n, err := src.load(ctx, fs)
	if err != nil {
		db.Close()
		return counts{}, err
	}
	s.FS = fs
	s.closer = db
	return n, nil
}

// load ingests every folder, file and revision row.
func (b *brdb) load(ctx context.Context, fs *vfs.FS) (counts, error) {
	var n counts

	rows, err := b.db.QueryContext(ctx, `SELECT folder_id, parent_id, name, created_at, deleted_at FROM folders`)
	if err != nil {
		return n, wrapSQL("query folders", err)
	}
	for rows.Next() {
		var (
			f                            vfs.Folder
			parent, createdAt, deletedAt sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &parent, &f.Name, &createdAt, &deletedAt); err != nil {
			rows.Close()
			return n, wrapSQL("scan folder", err)
		}
		f.ParentID = parent.Int64
		f.CreatedAt = createdAt.Int64
		f.DeletedAt = nullablePtr(deletedAt)
		fs.IngestFolder(f)
		n.folders++
	}
	if err := closeRows(rows); err != nil {
		return n, wrapSQL("read folders", err)
	}

	rows, err = b.db.QueryContext(ctx, `SELECT file_id, parent_id, content_id, name, created_at, deleted_at FROM files`)
	if err != nil {
		return n, wrapSQL("query files", err)
	}
	for rows.Next() {
		var (
			f                            vfs.File
			parent, createdAt, deletedAt sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &parent, &f.ContentID, &f.Name, &createdAt, &deletedAt); err != nil {
			rows.Close()
			return n, wrapSQL("scan file", err)
		}
		f.ParentID = parent.Int64
		f.CreatedAt = createdAt.Int64
		f.DeletedAt = nullablePtr(deletedAt)
		fs.IngestFile(f)
		n.files++
	}
	if err := closeRows(rows); err != nil {
		return n, wrapSQL("read files", err)
	}

	rows, err = b.db.QueryContext(ctx, `SELECT revision_id, created_at, description FROM revisions`)
	if err != nil {
		return n, wrapSQL("query revisions", err)
	}
	for rows.Next() {
		var (
			r           vfs.Revision
			createdAt   sql.NullInt64
			description sql.NullString
		)
		if err := rows.Scan(&r.ID, &createdAt, &description); err != nil {
			rows.Close()
			return n, wrapSQL("scan revision", err)
		}
		r.CreatedAt = createdAt.Int64
		r.Description = description.String
		fs.IngestRevision(r)
		n.revisions++
	}
	if err := closeRows(rows); err != nil {
		return n, wrapSQL("read revisions", err)
	}

	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n.blobs); err != nil {
		return n, wrapSQL("count blobs", err)
	}
	return n, nil
}

// Blobs implements vfs.BlobSource.
func (b *brdb) Blobs(ctx context.Context, ids []int64) ([]vfs.RawBlob, error) {
	out := make([]vfs.RawBlob, 0, len(ids))
	for start := 0; start < len(ids); start += blobBatchSize {
		end := start + blobBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := `SELECT blob_id, compression, size_uncompressed, size_compressed, content
			FROM blobs WHERE blob_id IN (` + placeholders(len(batch)) + `)`

		rows, err := b.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, wrapSQL("query blobs", err)
		}
		for rows.Next() {
			var (
				blob        vfs.RawBlob
				compression int64
				sizeU       sql.NullInt64
				sizeC       sql.NullInt64
			)
			if err := rows.Scan(&blob.ID, &compression, &sizeU, &sizeC, &blob.Content); err != nil {
				rows.Close()
				return nil, wrapSQL("scan blob", err)
			}
			blob.Compression = compress.Method(compression)
			blob.SizeUncompressed = sizeU.Int64
			blob.SizeCompressed = sizeC.Int64
			out = append(out, blob)
		}
		if err := closeRows(rows); err != nil {
			return nil, wrapSQL("read blobs", err)
		}
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullablePtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}

// closeRows reports iteration errors before closing.
func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// wrapSQL turns a database failure into an INTERNAL error with context.
func wrapSQL(what string, err error) error {
	return errors.NewInternal(fmt.Errorf("%s: %w", what, err))
}
