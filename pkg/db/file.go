package db

import (
	"time"
)

// AccessEntry grants a right to one group on one file. Groups are referenced
// by name so that serializing a file doesn't duplicate group state; the live
// Group record is resolved through the catalog when the right is evaluated.
type AccessEntry struct {
	Group string      `json:"group"`
	Right AccessRight `json:"right"`
}

// File is the catalog entry for one tracked path. The path is relative to
// the synchronized tree root and is the file's identity on both sides.
// Client catalogs carry an empty access list; the client does not enforce
// access control locally.
type File struct {
	Path         string        `json:"path"`
	DateModified time.Time     `json:"dateModified"`
	Access       []AccessEntry `json:"access,omitempty"`
}

// NewFile creates a record for path with an empty access list.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) entryFor(group string) *AccessEntry {
	for i := range f.Access {
		if f.Access[i].Group == group {
			return &f.Access[i]
		}
	}
	return nil
}

// Test reports whether group holds every bit of the asked right. A group
// with no entry holds NoAccess.
func (f *File) Test(group string, asked AccessRight) bool {
	entry := f.entryFor(group)
	if entry == nil {
		return false
	}
	return entry.Right.Contains(asked)
}

// AddRight grants additional bits to group, creating the entry if needed.
func (f *File) AddRight(group string, right AccessRight) {
	if entry := f.entryFor(group); entry != nil {
		entry.Right |= right
		return
	}
	f.Access = append(f.Access, AccessEntry{Group: group, Right: right})
}

// RemoveRight withdraws bits from group's entry, if one exists.
func (f *File) RemoveRight(group string, right AccessRight) {
	if entry := f.entryFor(group); entry != nil {
		entry.Right &^= right
	}
}

// SetRight replaces group's entry outright, creating it if needed.
func (f *File) SetRight(group string, right AccessRight) {
	if entry := f.entryFor(group); entry != nil {
		entry.Right = right
		return
	}
	f.Access = append(f.Access, AccessEntry{Group: group, Right: right})
}

// OlderThan reports whether the record predates t.
func (f *File) OlderThan(t time.Time) bool {
	return f.DateModified.Before(t)
}

// Touch bumps the record's modification timestamp.
func (f *File) Touch(t time.Time) {
	f.DateModified = t
}
