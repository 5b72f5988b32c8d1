package btree

import (
	"nifflerdb/internal/storage/layout"
	"nifflerdb/internal/storage/pager"
)

// storeValue writes raw into a ValueRef, inline if it fits, or else as a
// chain of overflow pages. See SPEC_FULL.md §3.3.
func storeValue(p *pager.Pager, raw []byte) (layout.ValueRef, error) {
	var ref layout.ValueRef
	ref.Length = uint32(len(raw))

	if len(raw) <= layout.InlineValueCap {
		copy(ref.Inline[:], raw)
		return ref, nil
	}

	var headPage uint32
	var prevPage uint32
	remaining := raw
	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > layout.OverflowPayloadCap {
			chunk = chunk[:layout.OverflowPayloadCap]
		}

		idx, buf, err := p.AllocPage()
		if err != nil {
			return layout.ValueRef{}, err
		}
		layout.EncodeOverflowHeader(buf, 0)
		copy(buf[layout.OverflowPageHeaderSize:], chunk)
		p.MarkDirty(idx)

		if headPage == 0 {
			headPage = idx
		}
		if prevPage != 0 {
			prevBuf, err := p.GetPage(prevPage)
			if err != nil {
				return layout.ValueRef{}, err
			}
			layout.EncodeOverflowHeader(prevBuf, idx)
			p.MarkDirty(prevPage)
		}
		prevPage = idx
		remaining = remaining[len(chunk):]
	}

	ref.OverflowHead = headPage
	return ref, nil
}

// loadValue reconstitutes the raw bytes a ValueRef describes.
func loadValue(p *pager.Pager, ref layout.ValueRef) ([]byte, error) {
	if ref.Length <= layout.InlineValueCap {
		return append([]byte(nil), ref.Inline[:ref.Length]...), nil
	}

	out := make([]byte, 0, ref.Length)
	page := ref.OverflowHead
	for page != 0 && uint32(len(out)) < ref.Length {
		buf, err := p.GetPage(page)
		if err != nil {
			return nil, err
		}
		want := ref.Length - uint32(len(out))
		if want > uint32(layout.OverflowPayloadCap) {
			want = uint32(layout.OverflowPayloadCap)
		}
		out = append(out, buf[layout.OverflowPageHeaderSize:layout.OverflowPageHeaderSize+int(want)]...)
		page = layout.DecodeOverflowHeader(buf)
	}
	return out, nil
}

// freeValue releases every overflow page a ValueRef chains through. No-op
// for inline values.
func freeValue(p *pager.Pager, ref layout.ValueRef) error {
	page := ref.OverflowHead
	for page != 0 {
		buf, err := p.GetPage(page)
		if err != nil {
			return err
		}
		next := layout.DecodeOverflowHeader(buf)
		if err := p.FreePage(page); err != nil {
			return err
		}
		page = next
	}
	return nil
}
