package pager

import "nifflerdb/internal/storage/layout"

// The free list is a doubly-linked chain of layout.FreeListPages rooted at
// header.LastFreeListPage, which always names the *tail* — the page new
// entries are appended to and popped from. Each page's Prev walks toward
// the head (the oldest free-list page); Next walks back toward the tail.
// Only the tail may hold fewer than layout.FreeListCap entries.

func (p *Pager) readFreeListPage(idx uint32) (layout.FreeListPage, error) {
	buf, err := p.GetPage(idx)
	if err != nil {
		return layout.FreeListPage{}, err
	}
	var flp layout.FreeListPage
	flp.Decode(buf)
	return flp, nil
}

func (p *Pager) writeFreeListPage(idx uint32, flp *layout.FreeListPage) error {
	buf, err := p.GetPage(idx)
	if err != nil {
		return err
	}
	flp.Encode(buf)
	p.MarkDirty(idx)
	return nil
}

// popFreeList removes and returns one entry from the tail of the free
// list. ok is false if the free list is empty.
func (p *Pager) popFreeList() (uint32, bool, error) {
	if p.header.LastFreeListPage == 0 {
		return 0, false, nil
	}

	tailIdx := p.header.LastFreeListPage
	tail, err := p.readFreeListPage(tailIdx)
	if err != nil {
		return 0, false, err
	}

	entry := tail.Entries[tail.Count-1]
	tail.Count--

	if tail.Count == 0 {
		// The tail is now empty. Unlink it: the new tail is its
		// predecessor (0 if this was the only free-list page). The
		// now-plain page itself is stashed for reuse the next time a
		// new tail page needs to be allocated (spec.md §4.3: "the
		// now-empty tail is itself put back onto the free-list on the
		// next free").
		prevIdx := tail.Prev
		p.header.LastFreeListPage = prevIdx
		p.header.NumFreeListPages--

		if prevIdx != 0 {
			prev, err := p.readFreeListPage(prevIdx)
			if err != nil {
				return 0, false, err
			}
			prev.Next = 0
			if err := p.writeFreeListPage(prevIdx, &prev); err != nil {
				return 0, false, err
			}
		}

		// reusablePage already held an unconsumed page from an earlier
		// tail collapse (AllocPage only drains it once, via
		// allocRawPage, so a second collapse before that happens would
		// otherwise overwrite and permanently leak it). Return that
		// stale page to the list — now rooted at prevIdx — before
		// stashing this one.
		if p.reusablePage != 0 {
			stale := p.reusablePage
			p.reusablePage = 0
			if err := p.pushFreeList(stale); err != nil {
				return 0, false, err
			}
		}
		p.reusablePage = tailIdx
	} else {
		if err := p.writeFreeListPage(tailIdx, &tail); err != nil {
			return 0, false, err
		}
	}

	if err := p.writeHeader(); err != nil {
		return 0, false, err
	}
	return entry, true, nil
}

// FreeListPages returns every page index currently owned by the free
// list: each bookkeeping page in the doubly-linked chain, every data page
// recorded as an entry in one of those pages, and the free-standing page
// stashed in reusablePage (if any), which is unlinked from the chain but
// not yet handed out by AllocPage. Exported for callers (tests, CLI
// diagnostics) that need to confirm a page is genuinely free rather than
// merely unreachable from the tree root.
func (p *Pager) FreeListPages() (map[uint32]bool, error) {
	out := map[uint32]bool{}
	idx := p.header.LastFreeListPage
	for idx != 0 {
		out[idx] = true
		flp, err := p.readFreeListPage(idx)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < flp.Count; i++ {
			out[flp.Entries[i]] = true
		}
		idx = flp.Prev
	}
	if p.reusablePage != 0 {
		out[p.reusablePage] = true
	}
	return out, nil
}

// pushFreeList appends index to the tail of the free list, growing the
// chain (via allocRawPage — never recursively through the free list
// itself) if the current tail is full or the list is empty.
func (p *Pager) pushFreeList(index uint32) error {
	if p.header.LastFreeListPage == 0 {
		newIdx, err := p.allocRawPage()
		if err != nil {
			return err
		}
		flp := layout.FreeListPage{Next: 0, Prev: 0, Count: 0}
		flp.Entries[0] = index
		flp.Count = 1
		if err := p.writeFreeListPage(newIdx, &flp); err != nil {
			return err
		}
		p.header.LastFreeListPage = newIdx
		p.header.NumFreeListPages = 1
		return p.writeHeader()
	}

	tailIdx := p.header.LastFreeListPage
	tail, err := p.readFreeListPage(tailIdx)
	if err != nil {
		return err
	}

	if tail.Count == layout.FreeListCap {
		newIdx, err := p.allocRawPage()
		if err != nil {
			return err
		}
		tail.Next = newIdx
		if err := p.writeFreeListPage(tailIdx, &tail); err != nil {
			return err
		}

		newTail := layout.FreeListPage{Next: 0, Prev: tailIdx, Count: 0}
		newTail.Entries[0] = index
		newTail.Count = 1
		if err := p.writeFreeListPage(newIdx, &newTail); err != nil {
			return err
		}
		p.header.LastFreeListPage = newIdx
		p.header.NumFreeListPages++
		return p.writeHeader()
	}

	tail.Entries[tail.Count] = index
	tail.Count++
	if err := p.writeFreeListPage(tailIdx, &tail); err != nil {
		return err
	}
	return p.writeHeader()
}
