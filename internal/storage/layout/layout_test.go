package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareKeysLengthBeforeLexical(t *testing.T) {
	nine := NewKey("9")
	ten := NewKey("10")
	require.Negative(t, CompareKeys(nine, ten), `"9" must sort before "10"`)
	require.Positive(t, CompareKeys(ten, nine))
	require.Zero(t, CompareKeys(NewKey("abc"), NewKey("abc")))
}

func TestCompareKeysLexicalWithinEqualLength(t *testing.T) {
	require.Negative(t, CompareKeys(NewKey("aa"), NewKey("ab")))
	require.Positive(t, CompareKeys(NewKey("ba"), NewKey("ab")))
}

func TestFileHeaderRoundTrip(t *testing.T) {
	var h FileHeader
	copy(h.Version[:], VersionTag)
	h.PageSize = PageSize
	h.NumPages = 7
	h.LastFreeListPage = 3
	h.NumFreeListPages = 1

	buf := make([]byte, FileHeaderDiskSize)
	h.Encode(buf)

	var got FileHeader
	got.Decode(buf)
	require.Equal(t, h, got)
}

func TestTreeHeaderRoundTrip(t *testing.T) {
	h := TreeHeader{
		Order: LeafOrder, KeySize: KeySize, NumInternalNodes: 2,
		NumLeafNodes: 3, Height: 2, RootPage: 1, LeafPage: 4,
	}
	buf := make([]byte, TreeHeaderDiskSize)
	h.Encode(buf)

	var got TreeHeader
	got.Decode(buf)
	require.Equal(t, h, got)
}

func TestFreeListPageRoundTrip(t *testing.T) {
	f := FreeListPage{Next: 9, Prev: 0, Count: 3}
	f.Entries[0], f.Entries[1], f.Entries[2] = 10, 11, 12

	buf := make([]byte, PageSize)
	f.Encode(buf)

	var got FreeListPage
	got.Decode(buf)
	require.Equal(t, f.Next, got.Next)
	require.Equal(t, f.Prev, got.Prev)
	require.Equal(t, f.Count, got.Count)
	require.Equal(t, f.Entries[:f.Count], got.Entries[:got.Count])
}

func TestValueRefInlineRoundTrip(t *testing.T) {
	v := ValueRef{Length: 5}
	copy(v.Inline[:], "hello")

	buf := make([]byte, ValueRefSize)
	v.Encode(buf)

	var got ValueRef
	got.Decode(buf)
	require.Equal(t, v, got)
}

func TestFanOutFitsPage(t *testing.T) {
	require.LessOrEqual(t, NodeHeaderSize+InternalOrder*InternalEntrySize, PageSize)
	require.LessOrEqual(t, NodeHeaderSize+LeafOrder*LeafEntrySize, PageSize)
	require.Positive(t, InternalOrder)
	require.Positive(t, LeafOrder)
}
