package format

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitLength(t *testing.T) {
	cases := map[int]int{
		0:     4,
		1:     4,
		2:     4,
		16:    4,
		17:    5,
		32:    5,
		33:    6,
		256:   8,
		257:   9,
		10000: 14,
	}
	for size, want := range cases {
		require.Equal(t, want, BitLength(size), "palette size %d", size)
	}
}

func paletteSizes() []int {
	sizes := make([]int, 0, 128)
	for s := 1; s <= 70; s++ {
		sizes = append(sizes, s)
	}
	for b := 7; b <= 14; b++ {
		sizes = append(sizes, 1<<b-1, 1<<b, 1<<b+1)
	}
	return append(sizes, 10000)
}

func randomIndices(r *rand.Rand, paletteSize int) []int {
	indices := make([]int, SectionVolume)
	for i := range indices {
		indices[i] = r.IntN(paletteSize)
	}
	return indices
}

func TestPackedRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, layout := range []Layout{LayoutPacked, LayoutAligned} {
		for _, size := range paletteSizes() {
			b := BitLength(size)
			indices := randomIndices(r, size)

			words := layout.Encode(indices, b)
			require.Len(t, words, layout.WordCount(b, SectionVolume))

			got, err := layout.Decode(words, b, SectionVolume)
			require.NoError(t, err)
			require.Equal(t, indices, got, "%s layout, palette size %d", layout, size)
		}
	}
}

func TestPackedRoundTripAllMaxValues(t *testing.T) {
	for b := MinBitLength; b <= 14; b++ {
		indices := make([]int, SectionVolume)
		for i := range indices {
			indices[i] = 1<<b - 1
		}
		got, err := DecodeIndices(EncodeIndices(indices, b), b, SectionVolume)
		require.NoError(t, err)
		require.Equal(t, indices, got, "bit length %d", b)
	}
}

func TestPackedStraddlesWords(t *testing.T) {
	// With 5 bits per index the 13th index (bits 60..64) spans two words.
	indices := make([]int, 26)
	indices[12] = 0b10111

	words := EncodeIndices(indices, 5)
	require.Len(t, words, 3)
	require.Equal(t, uint64(0b0111)<<60, uint64(words[0]))
	require.Equal(t, int64(0b1), words[1])

	got, err := DecodeIndices(words, 5, len(indices))
	require.NoError(t, err)
	require.Equal(t, indices, got)
}

func TestPackedIsDenserThanAligned(t *testing.T) {
	require.Equal(t, 320, LayoutPacked.WordCount(5, SectionVolume))
	require.Equal(t, 342, LayoutAligned.WordCount(5, SectionVolume))
	require.Equal(t, 256, LayoutPacked.WordCount(4, SectionVolume))
	require.Equal(t, 256, LayoutAligned.WordCount(4, SectionVolume))
}

func TestDecodeIgnoresTrailingPadding(t *testing.T) {
	words := []int64{0x21, -1}
	got, err := DecodeIndices(words, 4, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, got)
}

func TestDecodeCountNotMultipleOfWord(t *testing.T) {
	indices := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0, 1, 2}
	got, err := DecodeIndices(EncodeIndices(indices, 4), 4, len(indices))
	require.NoError(t, err)
	require.Equal(t, indices, got)
}

func TestDecodeShortData(t *testing.T) {
	_, err := DecodeIndices(make([]int64, 255), 4, SectionVolume)
	require.ErrorIs(t, err, ErrShortData)
}

func TestSingleEntryPaletteEncodesZeros(t *testing.T) {
	words := EncodeIndices(make([]int, SectionVolume), BitLength(1))
	require.Len(t, words, 256)
	for _, w := range words {
		require.Zero(t, w)
	}
}

func TestEncodePanicsOnOversizedIndex(t *testing.T) {
	require.PanicsWithError(t, "format: encode: index 16 at position 3 does not fit in 4 bits", func() {
		EncodeIndices([]int{0, 1, 2, 16}, 4)
	})
	require.Panics(t, func() {
		EncodeIndices([]int{-1}, 4)
	})
}

func TestCodecPanicsOnBadBitLength(t *testing.T) {
	require.Panics(t, func() { EncodeIndices([]int{0}, 3) })
	require.Panics(t, func() { _, _ = DecodeIndices([]int64{0}, 33, 1) })
}
