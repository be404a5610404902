// Package compress decodes the compression methods used by save containers.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/brsave/internal/errors"
)

// Method is the compression tag stored next to a blob or index block.
type Method uint8

const (
	None Method = 0
	Zstd Method = 1
)

// String implements fmt.Stringer.
func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// decoder is safe for concurrent DecodeAll calls.
var decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// Decode returns the decompressed form of src.
// size is the expected decompressed length; pass a negative value when unknown.
// Stored (None) data is returned as-is.
func Decode(m Method, src []byte, size int) ([]byte, error) {
	switch m {
	case None:
		return src, nil
	case Zstd:
		var dst []byte
		if size > 0 {
			dst = make([]byte, 0, size)
		}
		out, err := decoder.DecodeAll(src, dst)
		if err != nil {
			return nil, errors.NewBadArchive(fmt.Sprintf("zstd decode failed: %v", err))
		}
		if size >= 0 && len(out) != size {
			return nil, errors.NewBadArchive(fmt.Sprintf("decompressed size %d, expected %d", len(out), size))
		}
		return out, nil
	default:
		return nil, errors.NewBadArchive(fmt.Sprintf("unknown compression method %d", uint8(m)))
	}
}
