package format

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// MinBitLength is the smallest number of bits used per block index,
	// regardless of how small the palette is.
	MinBitLength = 4
	// MaxBitLength is the largest bit length the codec accepts.
	MaxBitLength = 32
)

// ErrShortData is returned when a packed array holds fewer bits than the
// requested number of indices needs.
var ErrShortData = errors.New("packed data too short")

// InvariantError describes a caller bug detected by the codec, such as an
// index that does not fit the bit length it is encoded with. The codec
// panics with an *InvariantError instead of returning it.
type InvariantError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("format: %s: %s", e.Op, e.Reason)
}

// violate panics with an *InvariantError for op.
func violate(op, msg string, args ...any) {
	panic(&InvariantError{Op: op, Reason: fmt.Sprintf(msg, args...)})
}

// Layout describes how fixed-width indices are laid out in 64-bit words.
type Layout uint8

const (
	// LayoutPacked packs indices back to back, low bits first. An index may
	// straddle two consecutive words.
	LayoutPacked Layout = iota
	// LayoutAligned never splits an index: each word holds 64/bitLength
	// indices and the remaining high bits are padding.
	LayoutAligned
)

// String returns the layout's name.
func (l Layout) String() string {
	switch l {
	case LayoutPacked:
		return "packed"
	case LayoutAligned:
		return "aligned"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// BitLength returns the number of bits used per index for a palette of the
// given size: ceil(log2(paletteSize)), but never less than MinBitLength.
func BitLength(paletteSize int) int {
	if paletteSize <= 1 {
		return MinBitLength
	}
	return max(bits.Len(uint(paletteSize-1)), MinBitLength)
}

// WordCount returns how many 64-bit words are needed to hold count indices of
// bitLength bits in the layout.
func (l Layout) WordCount(bitLength, count int) int {
	if count <= 0 {
		return 0
	}
	if l == LayoutAligned {
		perWord := 64 / bitLength
		return (count + perWord - 1) / perWord
	}
	return (count*bitLength + 63) / 64
}

// Decode unpacks count indices of bitLength bits from words.
func (l Layout) Decode(words []int64, bitLength, count int) ([]int, error) {
	checkBitLength("decode", bitLength)
	if count < 0 {
		violate("decode", "negative index count %d", count)
	}
	if need := l.WordCount(bitLength, count); len(words) < need {
		return nil, fmt.Errorf("%w: %d words, need %d for %d indices of %d bits", ErrShortData, len(words), need, count, bitLength)
	}
	if l == LayoutAligned {
		return decodeAligned(words, bitLength, count), nil
	}
	return decodePacked(words, bitLength, count), nil
}

// Encode packs indices into 64-bit words using bitLength bits per index. The
// last word is zero-padded in its unused high bits. Encode panics with an
// *InvariantError if an index does not fit in bitLength bits.
func (l Layout) Encode(indices []int, bitLength int) []int64 {
	checkBitLength("encode", bitLength)
	limit := 1 << bitLength
	for i, v := range indices {
		if v < 0 || v >= limit {
			violate("encode", "index %d at position %d does not fit in %d bits", v, i, bitLength)
		}
	}
	if l == LayoutAligned {
		return encodeAligned(indices, bitLength)
	}
	return encodePacked(indices, bitLength)
}

// DecodeIndices unpacks count straddling indices of bitLength bits from words.
func DecodeIndices(words []int64, bitLength, count int) ([]int, error) {
	return LayoutPacked.Decode(words, bitLength, count)
}

// EncodeIndices packs indices back to back into 64-bit words, letting an index
// straddle two words where needed.
func EncodeIndices(indices []int, bitLength int) []int64 {
	return LayoutPacked.Encode(indices, bitLength)
}

// checkBitLength panics unless bitLength is within [MinBitLength, MaxBitLength].
func checkBitLength(op string, bitLength int) {
	if bitLength < MinBitLength || bitLength > MaxBitLength {
		violate(op, "bit length %d outside [%d, %d]", bitLength, MinBitLength, MaxBitLength)
	}
}

// decodePacked reads index i from bit i*bitLength onwards. When the index
// crosses a word boundary its high bits come from the low bits of the next
// word.
func decodePacked(words []int64, bitLength, count int) []int {
	mask := uint64(1)<<bitLength - 1
	indices := make([]int, count)
	for i := range count {
		bit := i * bitLength
		w, off := bit>>6, uint(bit&63)
		v := uint64(words[w]) >> off
		if int(off)+bitLength > 64 {
			v |= uint64(words[w+1]) << (64 - off)
		}
		indices[i] = int(v & mask)
	}
	return indices
}

// encodePacked is the inverse of decodePacked.
func encodePacked(indices []int, bitLength int) []int64 {
	words := make([]uint64, LayoutPacked.WordCount(bitLength, len(indices)))
	for i, idx := range indices {
		bit := i * bitLength
		w, off := bit>>6, uint(bit&63)
		v := uint64(idx)
		words[w] |= v << off
		if int(off)+bitLength > 64 {
			words[w+1] |= v >> (64 - off)
		}
	}
	return toSigned(words)
}

// decodeAligned reads perWord indices from each word, low bits first.
func decodeAligned(words []int64, bitLength, count int) []int {
	perWord := 64 / bitLength
	mask := uint64(1)<<bitLength - 1
	indices := make([]int, count)
	for i := range count {
		off := uint((i % perWord) * bitLength)
		indices[i] = int((uint64(words[i/perWord]) >> off) & mask)
	}
	return indices
}

// encodeAligned is the inverse of decodeAligned.
func encodeAligned(indices []int, bitLength int) []int64 {
	perWord := 64 / bitLength
	words := make([]uint64, LayoutAligned.WordCount(bitLength, len(indices)))
	for i, idx := range indices {
		words[i/perWord] |= uint64(idx) << uint((i%perWord)*bitLength)
	}
	return toSigned(words)
}

// toSigned reinterprets words as the signed longs stored in NBT.
func toSigned(words []uint64) []int64 {
	out := make([]int64, len(words))
	for i, w := range words {
		out[i] = int64(w)
	}
	return out
}
