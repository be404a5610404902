package vfs

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/brsave/internal/errors"
)

// BuildPath joins the names of folderID and its ancestors with "/",
// appending leaf when it is not empty. folderID 0 is the root, so
// BuildPath(0, "a.mps") is "a.mps".
func (fs *FS) BuildPath(folderID int64, leaf string) (string, error) {
	var parts []string
	if leaf != "" {
		parts = append(parts, leaf)
	}
	parent := folderID
	for hops := 0; parent != 0; hops++ {
		if hops >= MaxPathDepth {
			return "", errors.NewPathTooDeep(folderID, MaxPathDepth)
		}
		f, ok := fs.folders[parent]
		if !ok {
			return "", errors.NewNotFound("folder", parent)
		}
		parts = append(parts, f.Name)
		parent = f.ParentID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), nil
}

// folderPath returns the cached path of a folder. Folder paths do not
// depend on time, so they are computed once for every folder.
func (fs *FS) folderPath(id int64) (string, error) {
	if id == 0 {
		return "", nil
	}
	fs.folderPathsOnce.Do(func() {
		fs.folderPaths = make(map[int64]string, len(fs.folders))
		fs.folderPathErrs = make(map[int64]error)
		for fid := range fs.folders {
			p, err := fs.BuildPath(fid, "")
			if err != nil {
				fs.folderPathErrs[fid] = err
				continue
			}
			fs.folderPaths[fid] = p
		}
	})
	if err, ok := fs.folderPathErrs[id]; ok {
		return "", err
	}
	p, ok := fs.folderPaths[id]
	if !ok {
		return "", errors.NewNotFound("folder", id)
	}
	return p, nil
}

// joinPath appends name to a folder path.
func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// cleanPath trims surrounding and duplicate separators; "." is the root.
func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// Entry is a visible child of a folder.
type Entry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsDir     bool   `json:"is_dir"`
	ID        int64  `json:"id"`
	ContentID int64  `json:"content_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// pathIndex is the view of the tree at one timestamp.
type pathIndex struct {
	files    map[string]*File
	folders  map[string]*Folder
	children map[string][]Entry
	skipped  int
}

type indexEntry struct {
	once sync.Once
	idx  *pathIndex
}

// index returns the path index at ts, building it on first use.
func (fs *FS) index(ts int64) *pathIndex {
	e, _ := fs.indexes.LoadOrStore(ts, &indexEntry{})
	e.once.Do(func() {
		e.idx = fs.buildIndex(ts)
	})
	return e.idx
}

func (fs *FS) buildIndex(ts int64) *pathIndex {
	idx := &pathIndex{
		files:    make(map[string]*File),
		folders:  make(map[string]*Folder),
		children: make(map[string][]Entry),
	}

	for id, f := range fs.folders {
		if !f.Visible(ts) {
			continue
		}
		p, err := fs.folderPath(id)
		if err != nil {
			fs.log.Warn().Err(err).Int64("folder_id", id).Msg("skipping folder")
			idx.skipped++
			continue
		}
		if cur, ok := idx.folders[p]; ok && !newer(f.CreatedAt, f.ID, cur.CreatedAt, cur.ID) {
			continue
		}
		idx.folders[p] = f
	}

	for id, f := range fs.files {
		if !f.Visible(ts) {
			continue
		}
		dir, err := fs.folderPath(f.ParentID)
		if err != nil {
			fs.log.Warn().Err(err).Int64("file_id", id).Msg("skipping file")
			idx.skipped++
			continue
		}
		p := joinPath(dir, f.Name)
		if cur, ok := idx.files[p]; ok && !newer(f.CreatedAt, f.ID, cur.CreatedAt, cur.ID) {
			continue
		}
		idx.files[p] = f
	}

	for p, f := range idx.folders {
		dir := parentDir(p)
		idx.children[dir] = append(idx.children[dir], Entry{
			Name: f.Name, Path: p, IsDir: true, ID: f.ID, CreatedAt: f.CreatedAt,
		})
	}
	for p, f := range idx.files {
		dir := parentDir(p)
		idx.children[dir] = append(idx.children[dir], Entry{
			Name: f.Name, Path: p, ID: f.ID, ContentID: f.ContentID, CreatedAt: f.CreatedAt,
		})
	}
	for _, list := range idx.children {
		sort.Slice(list, func(i, j int) bool {
			if list[i].IsDir != list[j].IsDir {
				return list[i].IsDir
			}
			return list[i].Name < list[j].Name
		})
	}

	fs.log.Debug().
		Int64("ts", ts).
		Int("folders", len(idx.folders)).
		Int("files", len(idx.files)).
		Msg("built path index")
	return idx
}

// newer orders records sharing a path: later created_at wins, then higher id.
func newer(createdAt, id, curCreatedAt, curID int64) bool {
	if createdAt != curCreatedAt {
		return createdAt > curCreatedAt
	}
	return id > curID
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// FindFile returns the file visible at ts under fullPath. When several
// records share the path, the most recently created one wins.
func (fs *FS) FindFile(fullPath string, ts int64) (*File, bool) {
	f, ok := fs.index(ts).files[cleanPath(fullPath)]
	return f, ok
}

// FindFolder returns the folder visible at ts under fullPath.
func (fs *FS) FindFolder(fullPath string, ts int64) (*Folder, bool) {
	f, ok := fs.index(ts).folders[cleanPath(fullPath)]
	return f, ok
}

// List returns the visible children of dir at ts, folders first.
// dir "" (or "/") is the root.
func (fs *FS) List(dir string, ts int64) ([]Entry, error) {
	dir = cleanPath(dir)
	idx := fs.index(ts)
	if dir != "" {
		if _, ok := idx.folders[dir]; !ok {
			return nil, errors.NewFileNotFound(dir)
		}
	}
	list := idx.children[dir]
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}

// FilePath returns the full path of a file.
func (fs *FS) FilePath(f *File) (string, error) {
	dir, err := fs.folderPath(f.ParentID)
	if err != nil {
		return "", err
	}
	return joinPath(dir, f.Name), nil
}

// Glob returns the files visible at ts whose full path matches pattern
// (path.Match syntax), sorted by path. An empty pattern matches every file.
func (fs *FS) Glob(pattern string, ts int64) ([]Entry, error) {
	pattern = cleanPath(pattern)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("bad pattern %q: %v", pattern, err))
	}
	var out []Entry
	for p, f := range fs.index(ts).files {
		if pattern != "" {
			if ok, _ := path.Match(pattern, p); !ok {
				continue
			}
		}
		out = append(out, Entry{
			Name: f.Name, Path: p, ID: f.ID, ContentID: f.ContentID, CreatedAt: f.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
