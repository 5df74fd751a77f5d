package huff

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Header layout:
//
//	leafCount = uint8, number of leaves minus one
//	repeat leafCount+1 times:
//	  symbol = uint8
//	  count  = uint32 little-endian
//	lastBits = uint8, only when there are at least two leaves;
//	           bits used in the final payload byte, 0 meaning all 8
//
// The packed payload follows. An empty input produces no bytes at all.
const headerEntrySize = 5

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		return int64(n), err
	}
	if n != len(b) {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}

// WriteHeader writes the leaf count, the (symbol, count) entries and, for
// trees with more than one leaf, the number of bits used in the final
// payload byte. It returns ErrEmptyTree for an empty tree.
func (t *HuffTree) WriteHeader(w io.Writer) (int64, error) {
	leafCount, err := t.LeavesCount()
	if err != nil {
		return 0, err
	}
	leaves := t.leaves()

	buf := make([]byte, 0, 1+len(leaves)*headerEntrySize+1)
	buf = append(buf, leafCount)
	for _, leaf := range leaves {
		buf = append(buf, leaf.Symbol)
		buf = binary.LittleEndian.AppendUint32(buf, leaf.Weight)
	}
	if len(leaves) > 1 {
		bits, err := t.payloadBits()
		if err != nil {
			return 0, err
		}
		buf = append(buf, byte(bits%8))
	}
	return writeBytes(w, buf)
}

// ReadHeader reads the leaf count and the (symbol, count) entries. A stream
// with no bytes at all yields an empty table and no error. The trailing
// last-byte bit count is left for the caller, since only trees with more
// than one leaf have it.
func ReadHeader(r io.Reader) (FrequencyTable, int64, error) {
	var freq FrequencyTable
	var total int64

	var first [1]byte
	n, err := io.ReadFull(r, first[:])
	total += int64(n)
	if err == io.EOF {
		return freq, total, nil
	}
	if err != nil {
		return freq, total, formatErrorf(0, err, "read leaf count")
	}

	entries := int(first[0]) + 1
	var entry [headerEntrySize]byte
	var sum uint64
	for i := 0; i < entries; i++ {
		offset := total
		n, err := io.ReadFull(r, entry[:])
		total += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return FrequencyTable{}, total, formatErrorf(offset, err, "read entry %d of %d", i+1, entries)
		}
		sym := entry[0]
		count := binary.LittleEndian.Uint32(entry[1:])
		if _, dup := freq.Count(sym); dup {
			return FrequencyTable{}, total, formatErrorf(offset, nil, "duplicate symbol %#02x", sym)
		}
		sum += uint64(count)
		if sum > math.MaxUint32 {
			return FrequencyTable{}, total, formatErrorf(offset, nil, "total count overflows 32 bits")
		}
		freq.Set(sym, count)
	}
	return freq, total, nil
}
