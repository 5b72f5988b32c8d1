package btree

import (
	"nifflerdb/internal/storage/layout"
	"nifflerdb/internal/storage/pager"
	nerrors "nifflerdb/pkg/errors"
)

// Tree is a B+ tree laid out over a pager's pages: internal nodes route by
// key range, leaves hold the records, and every node at a given level is
// doubly linked to its siblings. The root page is not fixed: a root split
// allocates a new root above the old one, and a root left with a single
// child is freed and replaced by that child; the tree header always names
// the current root.
type Tree struct {
	p      *pager.Pager
	header layout.TreeHeader
}

// Create initializes a brand new, empty tree: one root (an internal node
// with a single child) pointing at one empty leaf. Grounded on the
// original implementation's bp_tree::create, adapted to the pager's
// AllocPage/Sync contract instead of get_free_page/sync(bool).
func Create(p *pager.Pager) (*Tree, error) {
	t := &Tree{p: p}
	t.header.Order = layout.LeafOrder
	t.header.KeySize = layout.KeySize
	t.header.Height = 1

	rootPage, rootBuf, err := p.AllocPage()
	if err != nil {
		return nil, err
	}
	leafPage, leafBuf, err := p.AllocPage()
	if err != nil {
		return nil, err
	}

	root := newInternalNode(rootBuf)
	root.setChild(0, leafPage)
	root.setCount(1)
	p.MarkDirty(rootPage)

	leaf := newLeafNode(leafBuf)
	leaf.SetParent(rootPage)
	p.MarkDirty(leafPage)

	t.header.NumInternalNodes = 1
	t.header.NumLeafNodes = 1
	t.header.RootPage = rootPage
	t.header.LeafPage = leafPage

	if err := t.writeHeader(); err != nil {
		return nil, err
	}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads an existing tree's header back from the pager's tree-header
// page and validates it structurally enough to catch an obviously corrupt
// file early.
func Load(p *pager.Pager) (*Tree, error) {
	t := &Tree{p: p}
	if err := t.readHeader(); err != nil {
		return nil, err
	}
	if t.header.RootPage == 0 || t.header.LeafPage == 0 {
		return nil, nerrors.Corruption("tree header has a zero root or leaf page")
	}
	if t.header.Height == 0 {
		return nil, nerrors.Corruption("tree header has zero height")
	}
	return t, nil
}

func (t *Tree) readHeader() error {
	buf, err := t.p.GetPage(layout.TreeHeaderPage)
	if err != nil {
		return err
	}
	t.header.Decode(buf)
	return nil
}

func (t *Tree) writeHeader() error {
	buf, err := t.p.GetPage(layout.TreeHeaderPage)
	if err != nil {
		return err
	}
	t.header.Encode(buf)
	t.p.MarkDirty(layout.TreeHeaderPage)
	return nil
}

// Header returns a copy of the tree's current header, for CLI/print use.
func (t *Tree) Header() layout.TreeHeader { return t.header }

// Sync flushes every dirty page (tree nodes, overflow pages, free list, and
// both fixed header pages) to disk and fsyncs.
func (t *Tree) Sync() error { return t.p.Sync() }

// searchTree walks from the root down to, but not including, the leaf
// level, returning the page of the internal node that directly parents the
// target leaf. height counts the number of internal-node levels: height==1
// means the root itself is the immediate parent of leaves.
func (t *Tree) searchTree(key layout.Key) (uint32, error) {
	page := t.header.RootPage
	height := t.header.Height
	for height > 1 {
		node, err := loadInternal(t.p, page)
		if err != nil {
			return 0, err
		}
		page = node.Child(findNodeChildIndex(node, key))
		height--
	}
	return page, nil
}

func (t *Tree) searchNode(parentPage uint32, key layout.Key) (uint32, error) {
	node, err := loadInternal(t.p, parentPage)
	if err != nil {
		return 0, err
	}
	return node.Child(findNodeChildIndex(node, key)), nil
}

// findNodeChildIndex returns the index of the first child whose routing
// key is strictly greater than key, or the last child if none is.
func findNodeChildIndex(node InternalNode, key layout.Key) uint32 {
	if node.Count() == 0 {
		return 0
	}
	for i := uint32(0); i < node.Count(); i++ {
		if layout.CompareKeys(node.Key(i), key) > 0 {
			return i
		}
	}
	return node.Count() - 1
}

// findInsertIndexLeaf returns the index of the first record whose key is
// strictly greater than key (i.e. where key should be inserted to keep the
// leaf sorted), or Count() if key sorts after every record.
func findInsertIndexLeaf(leaf LeafNode, key layout.Key) uint32 {
	for i := uint32(0); i < leaf.Count(); i++ {
		if layout.CompareKeys(leaf.Key(i), key) > 0 {
			return i
		}
	}
	return leaf.Count()
}

// findInsertIndexNode is findNodeChildIndex's twin for insertion: same
// scan, but the default is Count()-1 rather than 0 when empty (empty
// internal nodes never arise mid-insert).
func findInsertIndexNode(node InternalNode, key layout.Key) uint32 {
	for i := uint32(0); i < node.Count(); i++ {
		if layout.CompareKeys(node.Key(i), key) > 0 {
			return i
		}
	}
	return node.Count() - 1
}

// binarySearchRecord returns the index of key within leaf, or -1.
func binarySearchRecord(leaf LeafNode, key layout.Key) int64 {
	if leaf.Count() == 0 {
		return -1
	}
	low, high := int64(0), int64(leaf.Count())-1
	for low <= high {
		mid := low + (high-low)/2
		cmp := layout.CompareKeys(leaf.Key(uint32(mid)), key)
		switch {
		case cmp == 0:
			return mid
		case cmp < 0:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	return -1
}

// Exists reports whether key is present.
func (t *Tree) Exists(key layout.Key) (bool, error) {
	parentPage, err := t.searchTree(key)
	if err != nil {
		return false, err
	}
	leafPage, err := t.searchNode(parentPage, key)
	if err != nil {
		return false, err
	}
	leaf, err := loadLeaf(t.p, leafPage)
	if err != nil {
		return false, err
	}
	return binarySearchRecord(leaf, key) >= 0, nil
}

// Find returns key's value and true, or false if key is absent.
func (t *Tree) Find(key layout.Key) ([]byte, bool, error) {
	parentPage, err := t.searchTree(key)
	if err != nil {
		return nil, false, err
	}
	leafPage, err := t.searchNode(parentPage, key)
	if err != nil {
		return nil, false, err
	}
	leaf, err := loadLeaf(t.p, leafPage)
	if err != nil {
		return nil, false, err
	}
	idx := binarySearchRecord(leaf, key)
	if idx < 0 {
		return nil, false, nil
	}
	raw, err := loadValue(t.p, leaf.Value(uint32(idx)))
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// findSplitIndex picks where to divide a full node of arrLen entries given
// the incoming key, and whether that key belongs in the right-hand (new)
// half. Ported from the original bp_tree::find_split_index: the split index
// moves one past the midpoint when the key sorts after it, so the left
// half never ends up smaller than the right.
func findSplitIndex(arrLen uint32, key layout.Key, keyAt func(uint32) layout.Key) (bool, uint32) {
	splitIndex := arrLen / 2
	greater := layout.CompareKeys(key, keyAt(splitIndex)) > 0
	if greater {
		splitIndex++
	}
	return greater, splitIndex
}

func setParentPtrChildren(p *pager.Pager, node InternalNode, parentPage uint32) error {
	for i := uint32(0); i < node.Count(); i++ {
		child, err := loadInternal(p, node.Child(i))
		if err != nil {
			return err
		}
		child.SetParent(parentPage)
		p.MarkDirty(node.Child(i))
	}
	return nil
}
