package btree

import (
	"fmt"
	"strings"
)

// Print renders the tree one level per line, root first, leaves last, each
// node showing its page, parent, sibling links, and entries. It is a
// debugging aid (grounded on the original bp_tree::print), not a stable
// serialization: format may change between builds.
func (t *Tree) Print() (string, error) {
	var sb strings.Builder

	page := t.header.RootPage
	height := t.header.Height
	for height > 0 {
		node, err := loadInternal(t.p, page)
		if err != nil {
			return "", err
		}
		if err := printNodeLevel(&sb, t, page); err != nil {
			return "", err
		}
		sb.WriteByte('\n')
		page = node.Child(0)
		height--
	}

	if err := printLeafLevel(&sb, t, page); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func printNodeLevel(sb *strings.Builder, t *Tree, page uint32) error {
	for page != 0 {
		n, err := loadInternal(t.p, page)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "[PG:%d P:%d PR:%d N:%d {", page, n.Parent(), n.Prev(), n.Next())
		for i := uint32(0); i < n.Count(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "{%s,%d}", n.Key(i).String(), n.Child(i))
		}
		sb.WriteString("}]  ")
		page = n.Next()
	}
	return nil
}

func printLeafLevel(sb *strings.Builder, t *Tree, page uint32) error {
	for page != 0 {
		l, err := loadLeaf(t.p, page)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "[PG:%d P:%d PR:%d N:%d {", page, l.Parent(), l.Prev(), l.Next())
		for i := uint32(0); i < l.Count(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(l.Key(i).String())
		}
		sb.WriteString("}]  ")
		page = l.Next()
	}
	return nil
}
