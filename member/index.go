package member

import "github.com/google/btree"

// Index is a btree-backed secondary index over a member set, ordered
// by a caller-supplied comparator. It exists so the coordinator can
// answer leader()/oldest() in O(log n) instead of scanning every
// member on every query — the same role the teacher's cluster.go plays
// for `nodesByToken`, but keyed by an ordering function instead of a
// partition token.
type Index struct {
	tree *btree.BTree
	less func(a, b Member) bool
}

type indexItem struct {
	m    Member
	less func(a, b Member) bool
}

func (i indexItem) Less(than btree.Item) bool {
	return i.less(i.m, than.(indexItem).m)
}

// NewIndex builds an empty index ordered by cmp (negative when a
// precedes b).
func NewIndex(cmp func(a, b Member) int) *Index {
	less := func(a, b Member) bool { return cmp(a, b) < 0 }
	return &Index{tree: btree.New(8), less: less}
}

// Put inserts or replaces m, keyed by its own position under the
// index's order. Callers must Delete the member's old entry first if
// its ordering key (e.g. UpNumber, Status) changed — the index does not
// track members by identity, only by position.
func (i *Index) Put(m Member) {
	i.tree.ReplaceOrInsert(indexItem{m: m, less: i.less})
}

// Delete removes m's entry.
func (i *Index) Delete(m Member) {
	i.tree.Delete(indexItem{m: m, less: i.less})
}

// Min returns the smallest member under the index's order, and false
// if the index is empty.
func (i *Index) Min() (Member, bool) {
	item := i.tree.Min()
	if item == nil {
		return Member{}, false
	}
	return item.(indexItem).m, true
}

// Len returns the number of entries in the index.
func (i *Index) Len() int {
	return i.tree.Len()
}

// Ascend visits every member in increasing order until fn returns
// false.
func (i *Index) Ascend(fn func(Member) bool) {
	i.tree.Ascend(func(item btree.Item) bool {
		return fn(item.(indexItem).m)
	})
}
