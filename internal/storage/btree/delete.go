package btree

import (
	"nifflerdb/internal/storage/layout"
	"nifflerdb/pkg/utils"
)

// mergeOutcome reports where an absorbed-away page's parent entry still
// needs to be removed, once a merge has actually folded one node/leaf into
// its neighbour.
type mergeOutcome struct {
	parentPage   uint32
	pageToDelete uint32
}

// Remove deletes key if present. It reports whether anything was removed
// and syncs the pager on success.
func (t *Tree) Remove(key layout.Key) (bool, error) {
	removed, err := t.removeInternal(key)
	if err != nil || !removed {
		return removed, err
	}
	return true, t.Sync()
}

func (t *Tree) removeInternal(key layout.Key) (bool, error) {
	parentPage, err := t.searchTree(key)
	if err != nil {
		return false, err
	}
	parent, err := loadInternal(t.p, parentPage)
	if err != nil {
		return false, err
	}
	leafPage := parent.Child(findNodeChildIndex(parent, key))
	leaf, err := loadLeaf(t.p, leafPage)
	if err != nil {
		return false, err
	}

	idx := binarySearchRecord(leaf, key)
	if idx < 0 {
		return false, nil
	}

	if err := freeValue(t.p, leaf.Value(uint32(idx))); err != nil {
		return false, err
	}
	removeRecordAt(leaf, uint32(idx))
	markLeafDirty(t.p, leafPage)

	minRecords := layout.LeafOrder / 2
	if t.header.NumLeafNodes == 1 {
		minRecords = 0
	}

	if leaf.Count() >= uint32(minRecords) {
		return true, nil
	}

	couldBorrow, err := t.borrowKeyLeaf(leaf, leafPage)
	if err != nil {
		return false, err
	}
	if couldBorrow {
		return true, nil
	}

	outcome, err := t.mergeLeaf(leaf, leafPage, leaf.Next() == 0)
	if err != nil {
		return false, err
	}
	if outcome.parentPage != parentPage {
		parent, err = loadInternal(t.p, outcome.parentPage)
		if err != nil {
			return false, err
		}
	}
	return true, t.removeByPage(outcome.parentPage, parent, outcome.pageToDelete)
}

// removeByPage drops the routing entry for pageToDelete out of node
// (nodePage), then rebalances node itself if it fell under the minimum
// fan-out, recursing toward the root as merges cascade upward.
func (t *Tree) removeByPage(nodePage uint32, node InternalNode, pageToDelete uint32) error {
	deleteIndex, found := uint32(0), false
	for i := uint32(0); i < node.Count(); i++ {
		if node.Child(i) == pageToDelete {
			deleteIndex, found = i, true
			break
		}
	}
	utils.Assert(found, "removeByPage: page to delete not found among parent's children")

	if deleteIndex > 0 {
		node.setKey(deleteIndex-1, node.Key(deleteIndex))
	}
	removeKeyAt(node, deleteIndex)
	markInternalDirty(t.p, nodePage)

	if node.Count() == 1 && t.header.RootPage == nodePage && t.header.NumInternalNodes != 1 {
		if err := t.freeInternal(nodePage); err != nil {
			return err
		}
		t.header.Height--
		t.header.RootPage = node.Child(0)
		if err := t.writeHeader(); err != nil {
			return err
		}
		root, err := loadInternal(t.p, t.header.RootPage)
		if err != nil {
			return err
		}
		root.SetParent(0)
		markInternalDirty(t.p, t.header.RootPage)
		return nil
	}

	minChildren := uint32(1)
	if node.Parent() != 0 {
		minChildren = layout.InternalOrder / 2
	}
	if node.Count() >= minChildren {
		return nil
	}

	couldBorrow, err := t.borrowKeyNode(node, nodePage)
	if err != nil {
		return err
	}
	if couldBorrow {
		return nil
	}

	outcome, err := t.mergeNode(node, nodePage, node.Next() == 0)
	if err != nil {
		return err
	}
	parent, err := loadInternal(t.p, outcome.parentPage)
	if err != nil {
		return err
	}
	return t.removeByPage(outcome.parentPage, parent, outcome.pageToDelete)
}

func (t *Tree) borrowKeyLeaf(leaf LeafNode, leafPage uint32) (bool, error) {
	ok, err := t.borrowKeyLeafSide(false, leaf, leafPage)
	if err != nil || ok {
		return ok, err
	}
	return t.borrowKeyLeafSide(true, leaf, leafPage)
}

func (t *Tree) borrowKeyLeafSide(fromRight bool, leaf LeafNode, leafPage uint32) (bool, error) {
	var lenderPage uint32
	if fromRight {
		lenderPage = leaf.Next()
	} else {
		lenderPage = leaf.Prev()
	}
	if lenderPage == 0 {
		return false, nil
	}

	lender, err := loadLeaf(t.p, lenderPage)
	if err != nil {
		return false, err
	}
	if lender.Count() == uint32(layout.LeafOrder/2) {
		return false, nil
	}

	var srcIndex, destIndex uint32
	if fromRight {
		srcIndex, destIndex = 0, leaf.Count()
		if err := t.changeParent(leaf.Parent(), leaf.Key(0), lender.Key(1)); err != nil {
			return false, err
		}
	} else {
		srcIndex, destIndex = lender.Count()-1, 0
		if err := t.changeParent(lender.Parent(), lender.Key(0), lender.Key(srcIndex)); err != nil {
			return false, err
		}
	}

	insertRecordAt(leaf, lender.Key(srcIndex), lender.Value(srcIndex), destIndex)
	markLeafDirty(t.p, leafPage)

	removeRecordAt(lender, srcIndex)
	markLeafDirty(t.p, lenderPage)
	return true, nil
}

// changeParent walks up the tree correcting the routing key that used to
// bound a leaf/node at oldKey to newKey, continuing upward as long as the
// corrected entry was itself the last (unbounded-above) entry of its node.
func (t *Tree) changeParent(parentPage uint32, oldKey, newKey layout.Key) error {
	utils.Assert(parentPage != 0, "changeParent: reached root without finding bounding entry")
	parent, err := loadInternal(t.p, parentPage)
	if err != nil {
		return err
	}
	idx := findNodeChildIndex(parent, oldKey)
	isLastChild := idx == parent.Count()-1
	parent.setKey(idx, newKey)
	markInternalDirty(t.p, parentPage)

	if isLastChild && parent.Parent() != 0 {
		return t.changeParent(parent.Parent(), oldKey, newKey)
	}
	return nil
}

func (t *Tree) borrowKeyNode(node InternalNode, nodePage uint32) (bool, error) {
	ok, err := t.borrowKeyNodeSide(false, node, nodePage)
	if err != nil || ok {
		return ok, err
	}
	return t.borrowKeyNodeSide(true, node, nodePage)
}

func (t *Tree) borrowKeyNodeSide(fromRight bool, node InternalNode, nodePage uint32) (bool, error) {
	var lenderPage uint32
	if fromRight {
		lenderPage = node.Next()
	} else {
		lenderPage = node.Prev()
	}
	if lenderPage == 0 {
		return false, nil
	}

	lender, err := loadInternal(t.p, lenderPage)
	if err != nil {
		return false, err
	}
	if lender.Count() == uint32(layout.InternalOrder/2) {
		return false, nil
	}

	var srcIndex, destIndex uint32
	if fromRight {
		srcIndex, destIndex = 0, node.Count()
		if lender.Parent() != node.Parent() {
			if err := t.promoteLargerKey(lender.Key(srcIndex), nodePage, node.Parent()); err != nil {
				return false, err
			}
		}
		parent, err := loadInternal(t.p, node.Parent())
		if err != nil {
			return false, err
		}
		parentKeyIndex := findParentBoundIndex(parent, node.Key(node.Count()-1))
		parent.setKey(parentKeyIndex, lender.Key(0))
		markInternalDirty(t.p, node.Parent())
	} else {
		srcIndex, destIndex = lender.Count()-1, 0
		if lender.Parent() != node.Parent() {
			if err := t.promoteSmallerKey(lender.Key(srcIndex-1), lenderPage, lender.Parent()); err != nil {
				return false, err
			}
		}
		parent, err := loadInternal(t.p, lender.Parent())
		if err != nil {
			return false, err
		}
		parentKeyIndex := findInsertIndexNode(parent, lender.Key(0))
		parent.setKey(parentKeyIndex, lender.Key(srcIndex-1))
		markInternalDirty(t.p, lender.Parent())
	}

	srcKey, srcChild := lender.Key(srcIndex), lender.Child(srcIndex)
	insertNodeAt(node, srcKey, srcChild, destIndex)
	markInternalDirty(t.p, nodePage)

	child, err := loadInternal(t.p, srcChild)
	if err != nil {
		return false, err
	}
	child.SetParent(nodePage)
	markInternalDirty(t.p, srcChild)

	removeKeyAt(lender, srcIndex)
	markInternalDirty(t.p, lenderPage)
	return true, nil
}

// findParentBoundIndex returns the first entry in parent whose key is at
// least key, or the last entry if none qualifies.
func findParentBoundIndex(parent InternalNode, key layout.Key) uint32 {
	for i := uint32(0); i < parent.Count(); i++ {
		if layout.CompareKeys(parent.Key(i), key) >= 0 {
			return i
		}
	}
	return parent.Count() - 1
}

func insertNodeAt(node InternalNode, key layout.Key, page uint32, index uint32) {
	count := node.Count()
	for i := int64(count) - 1; i >= int64(index); i-- {
		ii := uint32(i)
		node.setKey(ii+1, node.Key(ii))
		node.setChild(ii+1, node.Child(ii))
	}
	node.setKey(index, key)
	node.setChild(index, page)
	node.setCount(count + 1)
}

func removeKeyAt(node InternalNode, index uint32) {
	count := node.Count()
	for i := index; i < count-1; i++ {
		node.setKey(i, node.Key(i+1))
		node.setChild(i, node.Child(i+1))
	}
	node.clearEntry(count - 1)
	node.setCount(count - 1)
}

func removeRecordAt(leaf LeafNode, index uint32) {
	count := leaf.Count()
	for i := index; i < count-1; i++ {
		leaf.setKey(i, leaf.Key(i+1))
		leaf.setValue(i, leaf.Value(i+1))
	}
	leaf.clearEntry(count - 1)
	leaf.setCount(count - 1)
}

func (t *Tree) promoteLargerKey(keyToPromote layout.Key, nodePage uint32, parentPage uint32) error {
	parent, err := loadInternal(t.p, parentPage)
	if err != nil {
		return err
	}
	set := false
	for i := uint32(0); i < parent.Count(); i++ {
		if parent.Child(i) != nodePage {
			continue
		}
		if layout.CompareKeys(parent.Key(i), keyToPromote) >= 0 {
			return nil
		}
		parent.setKey(i, keyToPromote)
		markInternalDirty(t.p, parentPage)
		set = true
		break
	}
	utils.Assert(set, "promoteLargerKey: could not find child page in parent")

	if parent.Parent() != 0 {
		return t.promoteLargerKey(keyToPromote, parentPage, parent.Parent())
	}
	return nil
}

func (t *Tree) promoteSmallerKey(keyToPromote layout.Key, nodePage uint32, parentPage uint32) error {
	parent, err := loadInternal(t.p, parentPage)
	if err != nil {
		return err
	}
	set, stopHere := false, false
	for i := uint32(0); i < parent.Count(); i++ {
		if parent.Child(i) != nodePage {
			continue
		}
		if layout.CompareKeys(parent.Key(i), keyToPromote) <= 0 {
			return nil
		}
		parent.setKey(i, keyToPromote)
		markInternalDirty(t.p, parentPage)
		set = true
		// Stop promoting once we hit a node whose last key is already
		// larger than keyToPromote, or we'd break ordering further up.
		if layout.CompareKeys(parent.Key(parent.Count()-1), keyToPromote) > 0 {
			stopHere = true
		}
		break
	}
	utils.Assert(set, "promoteSmallerKey: could not find child page in parent")
	if stopHere {
		return nil
	}

	if parent.Parent() != 0 {
		return t.promoteSmallerKey(keyToPromote, parentPage, parent.Parent())
	}
	return nil
}

func (t *Tree) mergeLeaf(leaf LeafNode, leafPage uint32, isLast bool) (mergeOutcome, error) {
	if isLast {
		utils.Assert(leaf.Prev() != 0, "mergeLeaf: last leaf has no previous sibling to merge into")
		prevPage := leaf.Prev()
		prev, err := loadLeaf(t.p, prevPage)
		if err != nil {
			return mergeOutcome{}, err
		}
		mergeLeafRecords(prev, leaf)
		markLeafDirty(t.p, prevPage)

		result := mergeOutcome{parentPage: leaf.Parent(), pageToDelete: leafPage}
		if err := t.freeLeaf(leafPage); err != nil {
			return mergeOutcome{}, err
		}
		if err := t.unlinkLeaf(prevPage, prev, leafPage, leaf); err != nil {
			return mergeOutcome{}, err
		}
		return result, nil
	}

	utils.Assert(leaf.Next() != 0, "mergeLeaf: non-last leaf has no next sibling")
	nextPage := leaf.Next()
	next, err := loadLeaf(t.p, nextPage)
	if err != nil {
		return mergeOutcome{}, err
	}
	result := mergeOutcome{parentPage: next.Parent(), pageToDelete: nextPage}

	if leaf.Parent() != next.Parent() {
		nextParent, err := loadInternal(t.p, next.Parent())
		if err != nil {
			return mergeOutcome{}, err
		}
		if err := t.promoteLargerKey(nextParent.Key(0), leafPage, leaf.Parent()); err != nil {
			return mergeOutcome{}, err
		}
	}

	mergeLeafRecords(leaf, next)
	markLeafDirty(t.p, leafPage)
	if err := t.freeLeaf(nextPage); err != nil {
		return mergeOutcome{}, err
	}
	if err := t.unlinkLeaf(leafPage, leaf, nextPage, next); err != nil {
		return mergeOutcome{}, err
	}
	return result, nil
}

func mergeLeafRecords(first, second LeafNode) {
	count, total := first.Count(), first.Count()+second.Count()
	for i := count; i < total; i++ {
		first.setKey(i, second.Key(i-count))
		first.setValue(i, second.Value(i-count))
	}
	first.setCount(total)
	second.setCount(0)
}

// unlinkLeaf splices removedPage out of the sibling chain once its
// records have already been folded into survivor.
func (t *Tree) unlinkLeaf(survivorPage uint32, survivor LeafNode, removedPage uint32, removed LeafNode) error {
	survivor.SetNext(removed.Next())
	markLeafDirty(t.p, survivorPage)
	if removed.Next() != 0 {
		farNext, err := loadLeaf(t.p, removed.Next())
		if err != nil {
			return err
		}
		farNext.SetPrev(removed.Prev())
		markLeafDirty(t.p, removed.Next())
	}
	return nil
}

func (t *Tree) mergeNode(node InternalNode, nodePage uint32, isLast bool) (mergeOutcome, error) {
	if isLast {
		utils.Assert(node.Prev() != 0, "mergeNode: last node has no previous sibling to merge into")
		prevPage := node.Prev()
		prev, err := loadInternal(t.p, prevPage)
		if err != nil {
			return mergeOutcome{}, err
		}
		if err := setParentPtrChildren(t.p, node, prevPage); err != nil {
			return mergeOutcome{}, err
		}
		mergeNodeEntries(prev, node)
		markInternalDirty(t.p, prevPage)

		result := mergeOutcome{parentPage: node.Parent(), pageToDelete: nodePage}
		if err := t.freeInternal(nodePage); err != nil {
			return mergeOutcome{}, err
		}
		if err := t.unlinkInternal(prevPage, prev, nodePage, node); err != nil {
			return mergeOutcome{}, err
		}
		return result, nil
	}

	utils.Assert(node.Next() != 0, "mergeNode: non-last node has no next sibling")
	nextPage := node.Next()
	next, err := loadInternal(t.p, nextPage)
	if err != nil {
		return mergeOutcome{}, err
	}
	result := mergeOutcome{parentPage: next.Parent(), pageToDelete: nextPage}

	if node.Parent() != next.Parent() {
		nextParent, err := loadInternal(t.p, next.Parent())
		if err != nil {
			return mergeOutcome{}, err
		}
		if err := t.promoteLargerKey(nextParent.Key(0), nodePage, node.Parent()); err != nil {
			return mergeOutcome{}, err
		}
	}

	if err := setParentPtrChildren(t.p, next, nodePage); err != nil {
		return mergeOutcome{}, err
	}
	mergeNodeEntries(node, next)
	markInternalDirty(t.p, nodePage)
	if err := t.freeInternal(nextPage); err != nil {
		return mergeOutcome{}, err
	}
	if err := t.unlinkInternal(nodePage, node, nextPage, next); err != nil {
		return mergeOutcome{}, err
	}
	return result, nil
}

func mergeNodeEntries(first, second InternalNode) {
	count, total := first.Count(), first.Count()+second.Count()
	for i := count; i < total; i++ {
		first.setKey(i, second.Key(i-count))
		first.setChild(i, second.Child(i-count))
	}
	first.setCount(total)
	second.setCount(0)
}

func (t *Tree) unlinkInternal(survivorPage uint32, survivor InternalNode, removedPage uint32, removed InternalNode) error {
	survivor.SetNext(removed.Next())
	markInternalDirty(t.p, survivorPage)
	if removed.Next() != 0 {
		farNext, err := loadInternal(t.p, removed.Next())
		if err != nil {
			return err
		}
		farNext.SetPrev(removed.Prev())
		markInternalDirty(t.p, removed.Next())
	}
	return nil
}

func (t *Tree) freeLeaf(page uint32) error {
	t.header.NumLeafNodes--
	if err := t.p.FreePage(page); err != nil {
		return err
	}
	return t.writeHeader()
}

func (t *Tree) freeInternal(page uint32) error {
	t.header.NumInternalNodes--
	if err := t.p.FreePage(page); err != nil {
		return err
	}
	return t.writeHeader()
}
