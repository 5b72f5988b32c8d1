// Package pager owns the on-disk file: it slices it into fixed-size pages,
// buffers them in a dirty-tracked cache, and hands out/reclaims pages
// through a disk-resident free list. The B+ tree engine in
// internal/storage/btree never touches diskio directly — it only ever
// asks a Pager for a page.
package pager

import (
	"bytes"

	"nifflerdb/internal/storage/diskio"
	"nifflerdb/internal/storage/layout"
	nerrors "nifflerdb/pkg/errors"
	"nifflerdb/pkg/utils"
)

// cachedPage is one buffered page: its bytes, and whether those bytes
// differ from what is on disk.
type cachedPage struct {
	data   []byte
	dirty  bool
	loaded bool
}

// Pager presents the file as an array of PageSize-byte pages with a
// buffered cache and a free list. See spec.md §4.3 for the full contract.
type Pager struct {
	file   *diskio.File
	header layout.FileHeader

	cache map[uint32]*cachedPage

	// maxCached bounds how many clean pages are kept buffered; 0 means
	// unbounded. Dirty pages are never evicted regardless of this cap,
	// per spec.md §4.3's cache policy.
	maxCached int
	cleanLRU  []uint32

	// reusablePage is a free-standing, currently-untracked page left
	// over when the free list's tail emptied (see freelist.go). It is
	// consumed by the next AllocPage or free-list tail growth before
	// the file is ever extended, so freed pages are always reused
	// before new ones are appended (Scenario D).
	reusablePage uint32
}

// Open opens path. If createNew, any existing content is discarded and a
// fresh file header is stamped; otherwise the existing header is read and
// validated.
func Open(path string, createNew bool) (*Pager, error) {
	var (
		f   *diskio.File
		err error
	)
	if createNew {
		f, err = diskio.Create(path)
	} else {
		f, err = diskio.Open(path)
	}
	if err != nil {
		return nil, err
	}

	p := &Pager{file: f, cache: make(map[uint32]*cachedPage)}

	if createNew {
		copy(p.header.Version[:], layout.VersionTag)
		p.header.PageSize = layout.PageSize
		// Page 0 (file header) and page 1 (tree header placeholder) are
		// always allocated; tree creation allocates its own root/leaf
		// pages on top of this through the normal AllocPage path.
		p.header.NumPages = 2
		if err := p.file.Truncate(2 * layout.PageSize); err != nil {
			p.file.Close()
			return nil, err
		}
		if err := p.writeHeader(); err != nil {
			p.file.Close()
			return nil, err
		}
		if err := p.file.Sync(); err != nil {
			p.file.Close()
			return nil, err
		}
		return p, nil
	}

	if err := p.readHeader(); err != nil {
		p.file.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pager) readHeader() error {
	buf := make([]byte, layout.PageSize)
	if err := p.file.ReadAt(buf, layout.FileHeaderPage*layout.PageSize); err != nil {
		return err
	}
	p.header.Decode(buf)
	var want [24]byte
	copy(want[:], layout.VersionTag)
	if !bytes.Equal(p.header.Version[:], want[:]) {
		return nerrors.VersionMismatch("unrecognized file header version tag")
	}
	if p.header.PageSize != layout.PageSize {
		return nerrors.Corruption("file header page size does not match build")
	}
	return nil
}

func (p *Pager) writeHeader() error {
	buf := make([]byte, layout.PageSize)
	p.header.Encode(buf)
	return p.file.WriteAt(buf, layout.FileHeaderPage*layout.PageSize)
}

// NumPages reports the file's current page count, including the two
// reserved header pages.
func (p *Pager) NumPages() uint32 { return p.header.NumPages }

// SetMaxCached bounds the number of clean pages kept in memory. 0 (the
// default) means unbounded.
func (p *Pager) SetMaxCached(n int) { p.maxCached = n }

// allocRawPage hands back a page index backed by real file space, never
// touching the free-list chain itself: either the single free-standing
// page left behind by a free-list tail collapsing to empty, or a brand
// new page at the end of the file. This is the "file-extension path"
// spec.md §4.3 requires free-list growth to use instead of recursing
// into the free-list pop logic.
func (p *Pager) allocRawPage() (uint32, error) {
	if p.reusablePage != 0 {
		idx := p.reusablePage
		p.reusablePage = 0
		return idx, nil
	}
	idx := p.header.NumPages
	p.header.NumPages++
	if err := p.file.Truncate(int64(p.header.NumPages) * layout.PageSize); err != nil {
		p.header.NumPages--
		return 0, nerrors.OutOfSpace("extend file", err)
	}
	if err := p.writeHeader(); err != nil {
		return 0, err
	}
	return idx, nil
}

// AllocPage returns a page whose buffer is zeroed, preferring a page
// popped off the free list over extending the file.
func (p *Pager) AllocPage() (uint32, []byte, error) {
	if idx, ok, err := p.popFreeList(); err != nil {
		return 0, nil, err
	} else if ok {
		cp := &cachedPage{data: make([]byte, layout.PageSize), dirty: true, loaded: true}
		p.setCache(idx, cp)
		return idx, cp.data, nil
	}

	idx, err := p.allocRawPage()
	if err != nil {
		return 0, nil, err
	}
	cp := &cachedPage{data: make([]byte, layout.PageSize), dirty: true, loaded: true}
	p.setCache(idx, cp)
	return idx, cp.data, nil
}

// FreePage returns index to the free list for future reuse.
func (p *Pager) FreePage(index uint32) error {
	return p.pushFreeList(index)
}

// GetPage returns the buffer for index, reading it from disk on a cache
// miss. The returned slice is the live cache buffer: mutate it in place
// and call MarkDirty.
func (p *Pager) GetPage(index uint32) ([]byte, error) {
	if cp, ok := p.cache[index]; ok {
		p.touchClean(index, cp)
		return cp.data, nil
	}

	buf := make([]byte, layout.PageSize)
	if err := p.file.ReadAt(buf, int64(index)*layout.PageSize); err != nil {
		return nil, err
	}
	cp := &cachedPage{data: buf, dirty: false, loaded: true}
	p.setCache(index, cp)
	return cp.data, nil
}

// MarkDirty flags index's cached page as needing to be written back on
// the next Sync. The page must already be in the cache (via GetPage or
// AllocPage).
func (p *Pager) MarkDirty(index uint32) {
	cp, ok := p.cache[index]
	utils.Assertf(ok, "MarkDirty on uncached page %d", index)
	cp.dirty = true
}

// Sync writes every dirty page back to its file offset, then fsyncs.
// Dirty flags are cleared only on success; on failure they remain set so
// a later Sync retries the same pages.
func (p *Pager) Sync() error {
	for idx, cp := range p.cache {
		if !cp.dirty {
			continue
		}
		if err := p.file.WriteAt(cp.data, int64(idx)*layout.PageSize); err != nil {
			return err
		}
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	for _, cp := range p.cache {
		cp.dirty = false
	}
	p.evictIfNeeded()
	return nil
}

// DiscardDirty drops every dirty page from the cache, forcing the next
// GetPage to re-read from disk. Callers use this after a failed
// mutation to avoid observing a partially-applied tree operation (see
// spec.md §9 Open Question 3 and SPEC_FULL.md §9).
func (p *Pager) DiscardDirty() {
	for idx, cp := range p.cache {
		if cp.dirty {
			delete(p.cache, idx)
		}
	}
}

// Close flushes nothing by itself (callers must Sync first) and closes
// the underlying file handle.
func (p *Pager) Close() error {
	return p.file.Close()
}

func (p *Pager) setCache(index uint32, cp *cachedPage) {
	p.cache[index] = cp
	if !cp.dirty {
		p.cleanLRU = append(p.cleanLRU, index)
		p.evictIfNeeded()
	}
}

func (p *Pager) touchClean(index uint32, cp *cachedPage) {
	if cp.dirty {
		return
	}
	p.cleanLRU = append(p.cleanLRU, index)
	p.evictIfNeeded()
}

// evictIfNeeded drops the least-recently-touched clean pages once the
// cache exceeds maxCached. Dirty pages are never candidates.
func (p *Pager) evictIfNeeded() {
	if p.maxCached <= 0 {
		return
	}
	for len(p.cache) > p.maxCached && len(p.cleanLRU) > 0 {
		idx := p.cleanLRU[0]
		p.cleanLRU = p.cleanLRU[1:]
		cp, ok := p.cache[idx]
		if !ok || cp.dirty {
			continue
		}
		delete(p.cache, idx)
	}
}
