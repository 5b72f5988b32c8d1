package btree

import "nifflerdb/internal/storage/layout"

// Record is one decoded key/value pair, used only by the leaf-chain walk
// below (tests) — the tree never hands these out through a public
// iterator, per the non-goal on range scans.
type Record struct {
	Key   layout.Key
	Value []byte
}

// firstLeafPage descends the leftmost child at every internal level to
// find the first leaf in key order.
func (t *Tree) firstLeafPage() (uint32, error) {
	page := t.header.RootPage
	height := t.header.Height
	for height > 0 {
		node, err := loadInternal(t.p, page)
		if err != nil {
			return 0, err
		}
		page = node.Child(0)
		height--
	}
	return page, nil
}

// allRecords walks the entire leaf chain left to right and decodes every
// record. It exists for tests that want to assert on full tree contents
// (Print walks the levels itself and does not use it); it is O(n) and
// unbounded, so it is never exposed as part of the public facade.
func (t *Tree) allRecords() ([]Record, error) {
	page, err := t.firstLeafPage()
	if err != nil {
		return nil, err
	}

	var out []Record
	for page != 0 {
		leaf, err := loadLeaf(t.p, page)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < leaf.Count(); i++ {
			raw, err := loadValue(t.p, leaf.Value(i))
			if err != nil {
				return nil, err
			}
			out = append(out, Record{Key: leaf.Key(i), Value: raw})
		}
		page = leaf.Next()
	}
	return out, nil
}
