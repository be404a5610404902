package vfs

import "strings"

// Stats describes the save at one timestamp.
type Stats struct {
	Timestamp      int64 `json:"timestamp"`
	Revision       int64 `json:"revision"`
	Revisions      int   `json:"revisions"`
	Folders        int   `json:"folders"`
	Files          int   `json:"files"`
	VisibleFolders int   `json:"visible_folders"`
	VisibleFiles   int   `json:"visible_files"`
	MpsFiles       int   `json:"mps_files"`
	SchemaFiles    int   `json:"schema_files"`
	Blobs          int   `json:"blobs"`
	Unresolvable   int   `json:"unresolvable"`
}

// Stats counts records overall and visible at ts.
func (fs *FS) Stats(ts int64) Stats {
	idx := fs.index(ts)
	st := Stats{
		Timestamp:      ts,
		Revisions:      len(fs.revisions),
		Folders:        len(fs.folders),
		Files:          len(fs.files),
		VisibleFolders: len(idx.folders),
		VisibleFiles:   len(idx.files),
		Unresolvable:   idx.skipped,
	}
	if r, ok := fs.RevisionAt(ts); ok {
		st.Revision = r.ID
	}

	blobs := make(map[int64]struct{})
	for p, f := range idx.files {
		blobs[f.ContentID] = struct{}{}
		switch {
		case strings.HasSuffix(p, mpsExt):
			st.MpsFiles++
		case strings.HasSuffix(p, schemaExt):
			st.SchemaFiles++
		}
	}
	st.Blobs = len(blobs)
	return st
}
