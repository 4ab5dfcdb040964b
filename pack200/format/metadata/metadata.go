package metadata

func MakePointer[T any](x T) *T {
	return &x
}

// Archive-wide metadata carried by the first segment of a stream.
// Nothing here is required; absent fields are omitted from the encoding.
type ArchiveMetadata struct {
	// Archive comment (the jar's zip comment)
	Comment *string `cbor:"0,keyasint,omitempty"`
	// Total number of entries across all segments
	Entries *uint64 `cbor:"1,keyasint,omitempty"`
	// Total size of the unpacked entries, after attributes were stripped
	InputSize *uint64 `cbor:"2,keyasint,omitempty"`
	// Latest modification time among all entries, unix seconds
	LatestModTime *int64 `cbor:"3,keyasint,omitempty"`
}

// GetComment returns the comment or the empty string.
func (m *ArchiveMetadata) GetComment() string {
	if m == nil || m.Comment == nil {
		return ""
	}
	return *m.Comment
}
