// Package segment divides an archive into size-bounded, independently
// decodable groups of entries.
package segment

import (
	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/format"
)

// Unbounded puts the whole archive into one segment.
const Unbounded int64 = -1

const (
	// Preamble plus a typical sub-header.
	SEGMENT_OVERHEAD int64 = format.PREAMBLE_SIZE + 48
	// Options, size and modtime of one file.
	FILE_OVERHEAD int64 = 8
)

// Estimator guesses how many bytes an entry adds to a segment.
type Estimator func(e *archive.Entry) int64

// Estimate counts the name and data of e plus FILE_OVERHEAD.
func Estimate(e *archive.Entry) int64 {
	return int64(len(e.Name)) + int64(len(e.Data)) + FILE_OVERHEAD
}

// Split assigns entries to segments in order. An entry starts a new segment
// when the current one is non-empty and would grow past limit. An entry too
// big for any segment gets one of its own. An empty archive still gives one
// empty segment.
func Split(entries []*archive.Entry, limit int64, estimate Estimator) ([][]*archive.Entry, error) {
	if estimate == nil {
		estimate = Estimate
	}
	var (
		segments [][]*archive.Entry
		current  []*archive.Entry
		size     = SEGMENT_OVERHEAD
	)
	for _, e := range entries {
		n := estimate(e)
		if limit != Unbounded && len(current) > 0 && size+n > limit {
			segments = append(segments, current)
			current = nil
			size = SEGMENT_OVERHEAD
		}
		current = append(current, e)
		size += n
	}
	if len(current) > 0 || len(segments) == 0 {
		segments = append(segments, current)
	}

	if limit == Unbounded {
		return segments, nil
	}
	for i, s := range segments {
		if len(s) < 2 {
			continue
		}
		total := SEGMENT_OVERHEAD
		for _, e := range s {
			total += estimate(e)
		}
		if total > limit {
			return nil, &format.SegmentOverflowError{Segment: i, Entries: len(s), Estimate: total, Limit: limit}
		}
	}
	return segments, nil
}
