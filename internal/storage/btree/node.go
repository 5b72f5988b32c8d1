// Package btree implements the on-disk B+ tree: internal nodes carrying
// routing (key, child-page) entries and leaves carrying (key, value-ref)
// records, both linked sibling-to-sibling at their level so a leaf scan
// never has to walk back up through an internal node. Every node lives in
// one pager page; the tree only ever talks to pages through a *pager.Pager,
// never through diskio directly.
package btree

import (
	"nifflerdb/internal/storage/layout"
	"nifflerdb/internal/storage/pager"
	"nifflerdb/pkg/utils"
)

// InternalNode views a page buffer as an internal node: a header followed
// by up to layout.InternalOrder (key, child-page) entries.
type InternalNode struct {
	buf []byte
}

func newInternalNode(buf []byte) InternalNode { return InternalNode{buf: buf} }

func (n InternalNode) Parent() uint32   { return beUint32(n.buf[0:4]) }
func (n InternalNode) SetParent(p uint32) { bePutUint32(n.buf[0:4], p) }
func (n InternalNode) Next() uint32     { return beUint32(n.buf[4:8]) }
func (n InternalNode) SetNext(p uint32) { bePutUint32(n.buf[4:8], p) }
func (n InternalNode) Prev() uint32     { return beUint32(n.buf[8:12]) }
func (n InternalNode) SetPrev(p uint32) { bePutUint32(n.buf[8:12], p) }
func (n InternalNode) Count() uint32    { return beUint32(n.buf[12:16]) }
func (n InternalNode) setCount(c uint32) { bePutUint32(n.buf[12:16], c) }

func internalEntryOffset(i uint32) int {
	return layout.NodeHeaderSize + int(i)*layout.InternalEntrySize
}

func (n InternalNode) Key(i uint32) layout.Key {
	utils.Assertf(i < n.Count(), "internal key index %d out of bounds (count %d)", i, n.Count())
	off := internalEntryOffset(i)
	var k layout.Key
	copy(k[:], n.buf[off:off+layout.KeySize])
	return k
}

func (n InternalNode) setKey(i uint32, k layout.Key) {
	off := internalEntryOffset(i)
	copy(n.buf[off:off+layout.KeySize], k[:])
}

func (n InternalNode) Child(i uint32) uint32 {
	utils.Assertf(i < n.Count(), "internal child index %d out of bounds (count %d)", i, n.Count())
	off := internalEntryOffset(i) + layout.KeySize
	return beUint32(n.buf[off : off+4])
}

func (n InternalNode) setChild(i uint32, page uint32) {
	off := internalEntryOffset(i) + layout.KeySize
	bePutUint32(n.buf[off:off+4], page)
}

func (n InternalNode) clearEntry(i uint32) {
	off := internalEntryOffset(i)
	for j := 0; j < layout.InternalEntrySize; j++ {
		n.buf[off+j] = 0
	}
}

// LeafNode views a page buffer as a leaf: a header followed by up to
// layout.LeafOrder (key, value-ref) records.
type LeafNode struct {
	buf []byte
}

func newLeafNode(buf []byte) LeafNode { return LeafNode{buf: buf} }

func (n LeafNode) Parent() uint32    { return beUint32(n.buf[0:4]) }
func (n LeafNode) SetParent(p uint32) { bePutUint32(n.buf[0:4], p) }
func (n LeafNode) Next() uint32      { return beUint32(n.buf[4:8]) }
func (n LeafNode) SetNext(p uint32)  { bePutUint32(n.buf[4:8], p) }
func (n LeafNode) Prev() uint32      { return beUint32(n.buf[8:12]) }
func (n LeafNode) SetPrev(p uint32)  { bePutUint32(n.buf[8:12], p) }
func (n LeafNode) Count() uint32     { return beUint32(n.buf[12:16]) }
func (n LeafNode) setCount(c uint32) { bePutUint32(n.buf[12:16], c) }

func leafEntryOffset(i uint32) int {
	return layout.NodeHeaderSize + int(i)*layout.LeafEntrySize
}

func (n LeafNode) Key(i uint32) layout.Key {
	utils.Assertf(i < n.Count(), "leaf key index %d out of bounds (count %d)", i, n.Count())
	off := leafEntryOffset(i)
	var k layout.Key
	copy(k[:], n.buf[off:off+layout.KeySize])
	return k
}

func (n LeafNode) setKey(i uint32, k layout.Key) {
	off := leafEntryOffset(i)
	copy(n.buf[off:off+layout.KeySize], k[:])
}

func (n LeafNode) Value(i uint32) layout.ValueRef {
	utils.Assertf(i < n.Count(), "leaf value index %d out of bounds (count %d)", i, n.Count())
	off := leafEntryOffset(i) + layout.KeySize
	var v layout.ValueRef
	v.Decode(n.buf[off : off+layout.ValueRefSize])
	return v
}

func (n LeafNode) setValue(i uint32, v layout.ValueRef) {
	off := leafEntryOffset(i) + layout.KeySize
	v.Encode(n.buf[off : off+layout.ValueRefSize])
}

func (n LeafNode) clearEntry(i uint32) {
	off := leafEntryOffset(i)
	for j := 0; j < layout.LeafEntrySize; j++ {
		n.buf[off+j] = 0
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func bePutUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// loadInternal and loadLeaf fetch a node's page through the pager. They
// don't distinguish node kind themselves — callers know which kind a page
// holds from tree structure (height, or the TreeHeader's leaf/root pages).
func loadInternal(p *pager.Pager, page uint32) (InternalNode, error) {
	buf, err := p.GetPage(page)
	if err != nil {
		return InternalNode{}, err
	}
	return newInternalNode(buf), nil
}

func loadLeaf(p *pager.Pager, page uint32) (LeafNode, error) {
	buf, err := p.GetPage(page)
	if err != nil {
		return LeafNode{}, err
	}
	return newLeafNode(buf), nil
}

func markInternalDirty(p *pager.Pager, page uint32) { p.MarkDirty(page) }
func markLeafDirty(p *pager.Pager, page uint32)     { p.MarkDirty(page) }
