package btree

import "nifflerdb/internal/storage/layout"

// Insert adds key/raw if key is not already present. It reports whether
// the insert happened (false, nil means key already existed) and syncs
// the pager on success so the tree is durable once Insert returns.
func (t *Tree) Insert(key layout.Key, raw []byte) (bool, error) {
	inserted, err := t.insertInternal(key, raw)
	if err != nil || !inserted {
		return inserted, err
	}
	return true, t.Sync()
}

func (t *Tree) insertInternal(key layout.Key, raw []byte) (bool, error) {
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

	if binarySearchRecord(leaf, key) >= 0 {
		return false, nil
	}

	ref, err := storeValue(t.p, raw)
	if err != nil {
		return false, err
	}

	if leaf.Count() == layout.LeafOrder {
		newLeafPage, newLeaf, err := t.insertLeafSplit(key, ref, leafPage, leaf)
		if err != nil {
			return false, err
		}
		if err := t.insertKey(parentPage, newLeaf.Key(0), leafPage, newLeafPage); err != nil {
			return false, err
		}
		return true, nil
	}

	insertRecordNonFull(leaf, key, ref)
	markLeafDirty(t.p, leafPage)
	return true, nil
}

// insertLeafSplit splits a full leaf, inserting the new record into
// whichever half it belongs in. Returns the new sibling's page and view.
func (t *Tree) insertLeafSplit(key layout.Key, ref layout.ValueRef, leafPage uint32, leaf LeafNode) (uint32, LeafNode, error) {
	newPage, newLeaf, err := t.createLeafSibling(leafPage, leaf)
	if err != nil {
		return 0, LeafNode{}, err
	}

	greater, splitIdx := findSplitIndex(leaf.Count(), key, leaf.Key)
	transferRecords(leaf, newLeaf, splitIdx)

	if greater {
		insertRecordNonFull(newLeaf, key, ref)
	} else {
		insertRecordNonFull(leaf, key, ref)
	}

	markLeafDirty(t.p, leafPage)
	markLeafDirty(t.p, newPage)
	return newPage, newLeaf, nil
}

// createLeafSibling allocates a new leaf immediately to the right of
// nodePage in the sibling chain, linking prev/next on all three affected
// leaves (nodePage, the new sibling, and nodePage's old next, if any).
func (t *Tree) createLeafSibling(nodePage uint32, node LeafNode) (uint32, LeafNode, error) {
	newPage, newBuf, err := t.p.AllocPage()
	if err != nil {
		return 0, LeafNode{}, err
	}
	newLeaf := newLeafNode(newBuf)
	newLeaf.SetParent(node.Parent())
	newLeaf.SetNext(node.Next())
	newLeaf.SetPrev(nodePage)

	oldNext := node.Next()
	node.SetNext(newPage)
	markLeafDirty(t.p, nodePage)
	markLeafDirty(t.p, newPage)

	if oldNext != 0 {
		next, err := loadLeaf(t.p, oldNext)
		if err != nil {
			return 0, LeafNode{}, err
		}
		next.SetPrev(newPage)
		markLeafDirty(t.p, oldNext)
	}

	t.header.NumLeafNodes++
	if err := t.writeHeader(); err != nil {
		return 0, LeafNode{}, err
	}
	return newPage, newLeaf, nil
}

// createInternalSibling is createLeafSibling's twin for internal nodes.
func (t *Tree) createInternalSibling(nodePage uint32, node InternalNode) (uint32, InternalNode, error) {
	newPage, newBuf, err := t.p.AllocPage()
	if err != nil {
		return 0, InternalNode{}, err
	}
	newNode := newInternalNode(newBuf)
	newNode.SetParent(node.Parent())
	newNode.SetNext(node.Next())
	newNode.SetPrev(nodePage)

	oldNext := node.Next()
	node.SetNext(newPage)
	markInternalDirty(t.p, nodePage)
	markInternalDirty(t.p, newPage)

	if oldNext != 0 {
		next, err := loadInternal(t.p, oldNext)
		if err != nil {
			return 0, InternalNode{}, err
		}
		next.SetPrev(newPage)
		markInternalDirty(t.p, oldNext)
	}

	t.header.NumInternalNodes++
	if err := t.writeHeader(); err != nil {
		return 0, InternalNode{}, err
	}
	return newPage, newNode, nil
}

// insertKey threads a newly promoted (key, rightPage) routing pair into
// nodePage, splitting and recursing upward as needed, or growing a new
// root if nodePage is 0 (the caller reached above the current root).
func (t *Tree) insertKey(nodePage uint32, key layout.Key, leftPage, rightPage uint32) error {
	if nodePage == 0 {
		rootPage, rootBuf, err := t.p.AllocPage()
		if err != nil {
			return err
		}
		root := newInternalNode(rootBuf)
		root.setKey(0, key)
		root.setChild(0, leftPage)
		root.setChild(1, rightPage)
		root.setCount(2)
		markInternalDirty(t.p, rootPage)

		t.header.RootPage = rootPage
		t.header.Height++
		t.header.NumInternalNodes++
		if err := t.writeHeader(); err != nil {
			return err
		}
		return setParentPtrChildren(t.p, root, rootPage)
	}

	node, err := loadInternal(t.p, nodePage)
	if err != nil {
		return err
	}

	if node.Count() == layout.InternalOrder {
		newPage, newNode, err := t.createInternalSibling(nodePage, node)
		if err != nil {
			return err
		}

		greater, splitIdx := findSplitIndex(node.Count()-1, key, node.Key)
		// Prevent the key from landing in the right half while sorting
		// before the key already chosen as the split point — see the
		// worked example in the original source.
		if greater && layout.CompareKeys(key, node.Key(splitIdx)) < 0 {
			splitIdx--
		}
		middleKey := node.Key(splitIdx)
		parentPage := node.Parent()

		transferChildren(node, newNode, splitIdx+1)
		if greater {
			insertKeyNonFull(newNode, key, rightPage)
		} else {
			insertKeyNonFull(node, key, rightPage)
		}
		markInternalDirty(t.p, nodePage)
		markInternalDirty(t.p, newPage)
		if err := setParentPtrChildren(t.p, newNode, newPage); err != nil {
			return err
		}

		return t.insertKey(parentPage, middleKey, nodePage, newPage)
	}

	insertKeyNonFull(node, key, rightPage)
	markInternalDirty(t.p, nodePage)
	return nil
}

func insertKeyNonFull(node InternalNode, key layout.Key, nextPage uint32) {
	insertKeyAt(node, key, nextPage, findInsertIndexNode(node, key))
}

// insertKeyAt inserts (key, nextPage) at index. Appending past the last
// entry sets it directly; inserting before an existing entry shifts the
// tail right by one and hands the displaced entry's old page to the new
// slot, since each routing key bounds the child immediately to its left.
func insertKeyAt(node InternalNode, key layout.Key, nextPage uint32, index uint32) {
	count := node.Count()
	node.setCount(count + 1)
	if index == count {
		node.setKey(index, key)
		node.setChild(index, nextPage)
	} else {
		for i := int64(count) - 1; i >= int64(index); i-- {
			ii := uint32(i)
			node.setKey(ii+1, node.Key(ii))
			node.setChild(ii+1, node.Child(ii))
		}
		node.setKey(index, key)
		node.setChild(index, node.Child(index+1))
		node.setChild(index+1, nextPage)
	}
}

func insertRecordNonFull(leaf LeafNode, key layout.Key, ref layout.ValueRef) {
	insertRecordAt(leaf, key, ref, findInsertIndexLeaf(leaf, key))
}

func insertRecordAt(leaf LeafNode, key layout.Key, ref layout.ValueRef, index uint32) {
	count := leaf.Count()
	for i := int64(count) - 1; i >= int64(index); i-- {
		ii := uint32(i)
		leaf.setKey(ii+1, leaf.Key(ii))
		leaf.setValue(ii+1, leaf.Value(ii))
	}
	leaf.setKey(index, key)
	leaf.setValue(index, ref)
	leaf.setCount(count + 1)
}

func transferRecords(source, target LeafNode, fromIndex uint32) {
	count := source.Count()
	j := uint32(0)
	for i := fromIndex; i < count; i++ {
		target.setKey(j, source.Key(i))
		target.setValue(j, source.Value(i))
		j++
		source.clearEntry(i)
	}
	target.setCount(j)
	source.setCount(fromIndex)
}

func transferChildren(source, target InternalNode, fromIndex uint32) {
	count := source.Count()
	j := uint32(0)
	for i := fromIndex; i < count; i++ {
		target.setKey(j, source.Key(i))
		target.setChild(j, source.Child(i))
		j++
		source.clearEntry(i)
	}
	target.setCount(j)
	source.setCount(fromIndex)
}
