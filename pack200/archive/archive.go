// Package archive is the in-memory form of a jar: an ordered list of named
// entries with their bytes, modification times and compression hints.
package archive

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format"
)

type Kind uint8

const (
	KindResource Kind = iota
	KindClass
)

func (k Kind) String() string {
	if k == KindClass {
		return "class"
	}
	return "resource"
}

const CLASS_SUFFIX = ".class"

type Entry struct {
	Name string
	Data []byte
	Kind Kind
	// Second precision, no zone.
	ModTime time.Time
	// Entry was deflated in the source archive.
	Deflated bool
}

// NewEntry builds an entry, telling classes from resources by name.
func NewEntry(name string, data []byte, modTime time.Time) *Entry {
	kind := KindResource
	if strings.HasSuffix(name, CLASS_SUFFIX) {
		kind = KindClass
	}
	return &Entry{
		Name:    name,
		Data:    data,
		Kind:    kind,
		ModTime: NormalizeTime(modTime),
	}
}

// NormalizeTime drops sub-second precision and the zone.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.Truncate(time.Second).UTC()
}

func (e *Entry) IsClass() bool {
	return e.Kind == KindClass
}

type Archive struct {
	Entries []*Entry
	Comment string
}

func New(comment string, entries ...*Entry) *Archive {
	return &Archive{Entries: entries, Comment: comment}
}

// Validate checks that every entry is named and that names are unique.
func (a *Archive) Validate() error {
	seen := make(map[string]struct{}, len(a.Entries))
	for i, e := range a.Entries {
		if e == nil {
			return errors.Wrapf(format.ErrInvalidArchive, "entry %d is nil", i)
		}
		if e.Name == "" {
			return errors.Wrapf(format.ErrInvalidArchive, "entry %d has no name", i)
		}
		if _, ok := seen[e.Name]; ok {
			return errors.Wrapf(format.ErrInvalidArchive, "duplicate entry %s", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// Size is the number of data bytes over all entries.
func (a *Archive) Size() int64 {
	var n int64
	for _, e := range a.Entries {
		n += int64(len(e.Data))
	}
	return n
}

func (a *Archive) Classes() int {
	n := 0
	for _, e := range a.Entries {
		if e.IsClass() {
			n++
		}
	}
	return n
}

// LatestModTime is the newest entry time, or the epoch for an empty archive.
func (a *Archive) LatestModTime() time.Time {
	latest := time.Unix(0, 0).UTC()
	for _, e := range a.Entries {
		if e.ModTime.After(latest) {
			latest = e.ModTime
		}
	}
	return latest
}
