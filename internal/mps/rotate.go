package mps

import "strings"

// Rotate converts a structure-of-arrays record into one record per
// logical entity. Row i holds element i of every array field, keyed by
// the field name with one trailing "s" removed ("UserNames" -> "UserName").
// Non-array fields are dropped.
func Rotate(rec *Record) []*Record {
	var rows []*Record
	for f := rec.Oldest(); f != nil; f = f.Next() {
		list, ok := f.Value.([]any)
		if !ok {
			continue
		}
		key := strings.TrimSuffix(f.Key, "s")
		for i, v := range list {
			for len(rows) <= i {
				rows = append(rows, NewRecord())
			}
			rows[i].Set(key, v)
		}
	}
	return rows
}
