package format

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedArchive   = errors.New("malformed archive entry")
	ErrUnsupportedVersion = errors.New("unsupported class file version")
	ErrPolicyViolation    = errors.New("attribute policy violation")
	ErrSegmentOverflow    = errors.New("segment exceeds size limit")
	ErrStreamFormat       = errors.New("malformed packed stream")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvalidArchive     = errors.New("invalid archive")
)

// MalformedArchiveError reports an entry that cannot be parsed as a class file.
type MalformedArchiveError struct {
	Entry string
	Err   error
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMalformedArchive, e.Entry, e.Err)
}

func (e *MalformedArchiveError) Is(target error) bool { return target == ErrMalformedArchive }
func (e *MalformedArchiveError) Unwrap() error        { return e.Err }

// UnsupportedVersionError reports a class file using features newer than
// the current format version can carry.
type UnsupportedVersionError struct {
	Entry        string
	Major, Minor uint16
	Err          error
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: %s (class file %d.%d): %v", ErrUnsupportedVersion, e.Entry, e.Major, e.Minor, e.Err)
}

func (e *UnsupportedVersionError) Is(target error) bool { return target == ErrUnsupportedVersion }
func (e *UnsupportedVersionError) Unwrap() error        { return e.Err }

// PolicyViolationError reports an attribute that hit an ERROR rule.
type PolicyViolationError struct {
	Attribute string
	Class     string
	// Member is empty for class-level attributes.
	Member string
}

func (e *PolicyViolationError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("%s: attribute %s in class %s", ErrPolicyViolation, e.Attribute, e.Class)
	}
	return fmt.Sprintf("%s: attribute %s in %s.%s", ErrPolicyViolation, e.Attribute, e.Class, e.Member)
}

func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

// SegmentOverflowError is an internal invariant violation: a segment holding
// more than one entry was estimated over the limit.
type SegmentOverflowError struct {
	Segment  int
	Entries  int
	Estimate int64
	Limit    int64
}

func (e *SegmentOverflowError) Error() string {
	return fmt.Sprintf("%s: segment %d holds %d entries estimated at %d bytes, limit %d",
		ErrSegmentOverflow, e.Segment, e.Entries, e.Estimate, e.Limit)
}

func (e *SegmentOverflowError) Is(target error) bool { return target == ErrSegmentOverflow }

// StreamFormatError reports header or segment corruption on decode.
// Segment is -1 for the stream header.
type StreamFormatError struct {
	Segment int
	Reason  string
	Err     error
}

func (e *StreamFormatError) Error() string {
	msg := ErrStreamFormat.Error()
	if e.Segment >= 0 {
		msg = fmt.Sprintf("%s: segment %d", msg, e.Segment)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StreamFormatError) Is(target error) bool { return target == ErrStreamFormat }
func (e *StreamFormatError) Unwrap() error        { return e.Err }

// Exit codes for the command line driver.
const (
	EXIT_OK          = 0
	EXIT_FAILURE     = 1
	EXIT_USAGE       = 2
	EXIT_MALFORMED   = 3
	EXIT_UNSUPPORTED = 4
	EXIT_POLICY      = 5
	EXIT_OVERFLOW    = 6
	EXIT_STREAM      = 7
)

// ExitCode maps an error from the packer or unpacker to a distinct process
// exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return EXIT_OK
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidArchive):
		return EXIT_USAGE
	case errors.Is(err, ErrMalformedArchive):
		return EXIT_MALFORMED
	case errors.Is(err, ErrUnsupportedVersion):
		return EXIT_UNSUPPORTED
	case errors.Is(err, ErrPolicyViolation):
		return EXIT_POLICY
	case errors.Is(err, ErrSegmentOverflow):
		return EXIT_OVERFLOW
	case errors.Is(err, ErrStreamFormat):
		return EXIT_STREAM
	default:
		return EXIT_FAILURE
	}
}
