package huff

import (
	"fmt"
	"strings"
)

// maxCodeBits is the longest code a 256-symbol tree can produce.
const maxCodeBits = 255

// BitBuffer is a short bit string: a symbol's code or a path from the root.
// Bit i lives in bit i%8 of Bits[i/8], so the first bit is the least
// significant bit of Bits[0].
type BitBuffer struct {
	Len  uint8
	Bits [32]byte
}

// Append returns a copy of b with bit added at the end.
func (b BitBuffer) Append(bit uint8) BitBuffer {
	if b.Len == maxCodeBits {
		panic("huff: bit buffer overflow")
	}
	i := b.Len
	if bit != 0 {
		b.Bits[i/8] |= 1 << (i % 8)
	} else {
		b.Bits[i/8] &^= 1 << (i % 8)
	}
	b.Len++
	return b
}

// Bit reports bit i of the buffer.
func (b BitBuffer) Bit(i int) uint8 {
	return (b.Bits[i/8] >> (i % 8)) & 1
}

// String renders the bits in emission order, e.g. "01".
func (b BitBuffer) String() string {
	var sb strings.Builder
	sb.Grow(int(b.Len))
	for i := 0; i < int(b.Len); i++ {
		sb.WriteByte('0' + b.Bit(i))
	}
	return sb.String()
}

// CodeTable maps each symbol of a tree to its code.
type CodeTable struct {
	codes   [256]BitBuffer
	present [256]bool
}

// Lookup returns the code for symbol, or false if the tree has no such leaf.
func (t *CodeTable) Lookup(symbol byte) (BitBuffer, bool) {
	return t.codes[symbol], t.present[symbol]
}

func (t *CodeTable) set(symbol byte, code BitBuffer) {
	t.codes[symbol] = code
	t.present[symbol] = true
}

// ExtractCodes walks the tree and records the root-to-leaf path of every leaf.
// Running it again produces the same table.
func (t *HuffTree) ExtractCodes() error {
	root, err := t.Root()
	if err != nil {
		return err
	}
	var codes CodeTable
	t.extract(&codes, root, BitBuffer{})
	t.codes = codes
	t.hasCodes = true
	return nil
}

func (t *HuffTree) extract(codes *CodeTable, id NodeID, path BitBuffer) {
	n := &t.nodes[id]
	if n.Kind == KindLeaf {
		codes.set(n.Symbol, path)
		return
	}
	t.extract(codes, n.Left, path.Append(0))
	t.extract(codes, n.Right, path.Append(1))
}

// Code returns the code of symbol, extracting codes first if needed.
func (t *HuffTree) Code(symbol byte) (BitBuffer, error) {
	if err := t.ensureCodes(); err != nil {
		return BitBuffer{}, err
	}
	code, ok := t.codes.Lookup(symbol)
	if !ok {
		return BitBuffer{}, fmt.Errorf("%w: %#02x", ErrUnknownSymbol, symbol)
	}
	return code, nil
}

// Codes returns the code table, extracting codes first if needed.
func (t *HuffTree) Codes() (*CodeTable, error) {
	if err := t.ensureCodes(); err != nil {
		return nil, err
	}
	return &t.codes, nil
}

func (t *HuffTree) ensureCodes() error {
	if t.hasCodes {
		return nil
	}
	return t.ExtractCodes()
}

// payloadBits is the number of bits the codes of all counted symbols occupy.
func (t *HuffTree) payloadBits() (uint64, error) {
	if err := t.ensureCodes(); err != nil {
		return 0, err
	}
	var bits uint64
	for _, n := range t.nodes {
		if n.Kind != KindLeaf {
			continue
		}
		code, _ := t.codes.Lookup(n.Symbol)
		bits += uint64(n.Weight) * uint64(code.Len)
	}
	return bits, nil
}
