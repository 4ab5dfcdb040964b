package writer

import (
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

// compressBody compresses a segment body. A body that does not shrink is
// stored as is and the segment records COMPRESSION_NONE.
func compressBody(data []byte, compressor format.CompressionType, effort int) ([]byte, format.CompressionType, error) {
	if compressor == format.COMPRESSION_NONE {
		return data, format.COMPRESSION_NONE, nil
	}
	packed, err := ioutil.Compress(compressor, effort, data)
	if err != nil {
		return nil, 0, err
	}
	if len(packed) >= len(data) {
		return data, format.COMPRESSION_NONE, nil
	}
	return packed, compressor, nil
}
