package huff

import (
	"encoding/binary"
	"iter"

	"github.com/cespare/xxhash/v2"
)

// FrequencyTable holds the occurrence count of every symbol seen.
// Symbols are always visited in ascending byte order.
type FrequencyTable struct {
	counts  [256]uint32
	present [256]bool
	n       int
}

// Set records count occurrences of symbol, replacing any earlier value.
func (f *FrequencyTable) Set(symbol byte, count uint32) {
	if !f.present[symbol] {
		f.present[symbol] = true
		f.n++
	}
	f.counts[symbol] = count
}

// Count returns the count of symbol and whether it is in the table.
func (f *FrequencyTable) Count(symbol byte) (uint32, bool) {
	return f.counts[symbol], f.present[symbol]
}

// Len returns the number of distinct symbols.
func (f *FrequencyTable) Len() int {
	return f.n
}

// Total returns the sum of all counts.
func (f *FrequencyTable) Total() uint64 {
	var total uint64
	for _, c := range f.counts {
		total += uint64(c)
	}
	return total
}

// All iterates over (symbol, count) pairs in ascending symbol order.
func (f *FrequencyTable) All() iter.Seq2[byte, uint32] {
	return func(yield func(byte, uint32) bool) {
		for i := 0; i < 256; i++ {
			if !f.present[i] {
				continue
			}
			if !yield(byte(i), f.counts[i]) {
				return
			}
		}
	}
}

// Digest hashes the table in header entry layout.
func (f *FrequencyTable) Digest() uint64 {
	var d xxhash.Digest
	d.Reset()
	var entry [headerEntrySize]byte
	for sym, count := range f.All() {
		entry[0] = sym
		binary.LittleEndian.PutUint32(entry[1:], count)
		_, _ = d.Write(entry[:])
	}
	return d.Sum64()
}

// NodeKind tells the three node shapes apart.
type NodeKind uint8

const (
	KindEmpty NodeKind = iota
	KindLeaf
	KindInternal
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInternal:
		return "internal"
	default:
		return "empty"
	}
}

// NodeID addresses a node inside its tree.
type NodeID int32

// NoNode marks a missing child.
const NoNode NodeID = -1

// TreeNode is one node of the forest. Leaves carry a symbol, internal nodes
// carry two children and the sum of their weights.
type TreeNode struct {
	Kind     NodeKind
	Symbol   byte
	Weight   uint32
	Consumed bool
	Left     NodeID
	Right    NodeID
}

func leafNode(symbol byte, weight uint32) TreeNode {
	return TreeNode{Kind: KindLeaf, Symbol: symbol, Weight: weight, Left: NoNode, Right: NoNode}
}

// less orders merge candidates: unconsumed before consumed, then by
// (weight, symbol). Internal nodes have symbol 0.
func (n *TreeNode) less(o *TreeNode) bool {
	if n.Consumed != o.Consumed {
		return !n.Consumed
	}
	if n.Weight != o.Weight {
		return n.Weight < o.Weight
	}
	return n.Symbol < o.Symbol
}

// HuffTree owns one forest and the codes derived from it.
type HuffTree struct {
	freq     FrequencyTable
	nodes    []TreeNode
	codes    CodeTable
	hasCodes bool
}

// NewHuffTree builds a tree from freq and extracts its codes.
func NewHuffTree(freq FrequencyTable) *HuffTree {
	t := &HuffTree{}
	t.Build(freq)
	_ = t.ExtractCodes() // ErrEmptyTree leaves the code table empty
	return t
}

// Build discards the current forest and builds a new one from freq.
// The total of freq must fit in a uint32.
func (t *HuffTree) Build(freq FrequencyTable) {
	t.freq = freq
	t.codes = CodeTable{}
	t.hasCodes = false

	n := freq.Len()
	if n == 0 {
		t.nodes = t.nodes[:0]
		return
	}
	t.nodes = make([]TreeNode, 0, 2*n-1)
	for sym, count := range freq.All() {
		t.nodes = append(t.nodes, leafNode(sym, count))
	}
	for i := 0; i < n-1; i++ {
		first := t.minUnconsumed()
		t.nodes[first].Consumed = true
		second := t.minUnconsumed()
		t.nodes[second].Consumed = true
		t.nodes = append(t.nodes, TreeNode{
			Kind:   KindInternal,
			Weight: t.nodes[first].Weight + t.nodes[second].Weight,
			Left:   first,
			Right:  second,
		})
	}
}

// minUnconsumed returns the first node with the smallest key.
func (t *HuffTree) minUnconsumed() NodeID {
	best := 0
	for i := 1; i < len(t.nodes); i++ {
		if t.nodes[i].less(&t.nodes[best]) {
			best = i
		}
	}
	return NodeID(best)
}

// Clone builds an independent copy from the same frequency table.
func (t *HuffTree) Clone() *HuffTree {
	c := &HuffTree{}
	c.Build(t.freq)
	if t.hasCodes {
		c.codes = t.codes
		c.hasCodes = true
	}
	return c
}

// Frequencies returns the table the tree was built from.
func (t *HuffTree) Frequencies() FrequencyTable {
	return t.freq
}

// Len returns the number of nodes in the forest.
func (t *HuffTree) Len() int {
	return len(t.nodes)
}

// Empty reports whether the tree was built from an empty table.
func (t *HuffTree) Empty() bool {
	return len(t.nodes) == 0
}

// Root returns the root node, which is the last node created.
func (t *HuffTree) Root() (NodeID, error) {
	if t.Empty() {
		return NoNode, ErrEmptyTree
	}
	return NodeID(len(t.nodes) - 1), nil
}

// Node returns a copy of the node with the given id.
func (t *HuffTree) Node(id NodeID) TreeNode {
	return t.nodes[id]
}

// LeavesCount returns the number of leaves minus one, the value stored in
// the first header byte.
func (t *HuffTree) LeavesCount() (uint8, error) {
	if t.Empty() {
		return 0, ErrEmptyTree
	}
	return uint8((len(t.nodes) - 1) / 2), nil
}

// leaves iterates over the leaf nodes in ascending symbol order.
func (t *HuffTree) leaves() []TreeNode {
	return t.nodes[:t.freq.Len()]
}
