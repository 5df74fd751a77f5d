// Package huff implements a static Huffman archiver for byte streams.
//
// An archive starts with a header describing the symbol frequencies of the
// input, followed by the input's symbols packed as Huffman codes, least
// significant bit first. The decoder rebuilds the identical tree from the
// header and walks it bit by bit.
package huff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"
)

const defaultBufferSize = 64 * 1024

// Config holds configuration for the archiver.
type Config struct {
	Logger        *zerolog.Logger // nil = package Logger
	TreeCacheSize int             // Trees kept between calls (0 = no cache)
	BufferSize    int             // Read and write buffer size (0 = 64 KiB)
	DecodeLimit   int64           // Maximum decoded bytes per archive (0 = unlimited)
}

// Option is a functional option for configuring the archiver.
type Option func(*Config)

// WithLogger sets the logger used for debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &l
	}
}

// WithTreeCache keeps up to size built trees, so inputs with identical
// frequency tables reuse the tree and code table. Non-positive sizes disable
// the cache.
func WithTreeCache(size int) Option {
	return func(c *Config) {
		c.TreeCacheSize = size
	}
}

// WithBufferSize sets the size of the buffers wrapped around the streams.
func WithBufferSize(n int) Option {
	return func(c *Config) {
		c.BufferSize = n
	}
}

// WithDecodeLimit rejects archives whose header declares more than n
// decoded bytes.
func WithDecodeLimit(n int64) Option {
	return func(c *Config) {
		c.DecodeLimit = n
	}
}

// Stats reports the sizes involved in one Encode or Decode call.
type Stats struct {
	HeaderSize  int64 // bytes of header in the archive
	InputBytes  int64 // bytes consumed from the input
	OutputBytes int64 // bytes written to the output
}

// Archiver encodes and decodes archives. An Archiver runs one call at a time.
type Archiver struct {
	config Config
	log    zerolog.Logger
	cache  *treeCache
	tree   *HuffTree
}

// NewArchiver creates an archiver with the given options.
func NewArchiver(opts ...Option) *Archiver {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	a := &Archiver{config: cfg, log: Logger, tree: &HuffTree{}}
	if cfg.Logger != nil {
		a.log = *cfg.Logger
	}
	if cfg.TreeCacheSize > 0 {
		c, err := newTreeCache(cfg.TreeCacheSize)
		if err != nil {
			a.log.Warn().Err(err).Msg("tree cache disabled")
		} else {
			a.cache = c
		}
	}
	return a
}

// Tree returns the tree built by the most recent call. With WithTreeCache
// the tree may be shared with later calls and must be treated as read-only.
func (a *Archiver) Tree() *HuffTree {
	return a.tree
}

func (a *Archiver) bufferSize() int {
	if a.config.BufferSize > 0 {
		return a.config.BufferSize
	}
	return defaultBufferSize
}

func (a *Archiver) useTree(freq FrequencyTable, op string) *HuffTree {
	if a.cache != nil && freq.Len() > 0 {
		if t, ok := a.cache.get(&freq); ok {
			a.tree = t
			logTree(&a.log, op, t, true)
			return t
		}
	}
	t := NewHuffTree(freq)
	if a.cache != nil && !t.Empty() {
		a.cache.add(t)
	}
	a.tree = t
	logTree(&a.log, op, t, false)
	return t
}

// Encode reads all of in and writes its archive to out. Inputs that are
// io.ReadSeekers are read twice, other inputs are buffered in memory.
// An empty input produces an empty archive.
func (a *Archiver) Encode(in io.Reader, out io.Writer) (Stats, error) {
	var st Stats
	rs, ok := in.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(in)
		if err != nil {
			return st, fmt.Errorf("read input: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	t, n, err := a.buildFromInput(rs)
	st.InputBytes = n
	if err != nil {
		return st, err
	}
	if t.Empty() {
		logDone(&a.log, "encode", st)
		return st, nil
	}
	codes, err := t.Codes()
	if err != nil {
		return st, err
	}

	hn, err := t.WriteHeader(out)
	st.HeaderSize = hn
	st.OutputBytes = hn
	if err != nil {
		return st, fmt.Errorf("write header: %w", err)
	}
	logHeader(&a.log, "encode", hn)

	bw := newBitWriterSize(out, a.bufferSize())
	br := bufio.NewReaderSize(rs, a.bufferSize())
	var seen int64
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, fmt.Errorf("read input at offset %d: %w", seen, err)
		}
		code, ok := codes.Lookup(b)
		if !ok {
			return st, fmt.Errorf("%w: %#02x at offset %d", ErrUnknownSymbol, b, seen)
		}
		if err := bw.Write(code); err != nil {
			return st, fmt.Errorf("write payload: %w", err)
		}
		seen++
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("write payload: %w", err)
	}
	st.OutputBytes += bw.Written()
	if seen != st.InputBytes {
		return st, fmt.Errorf("input changed between passes: counted %d bytes, encoded %d", st.InputBytes, seen)
	}
	logDone(&a.log, "encode", st)
	return st, nil
}

// buildFromInput counts the symbols of rs, rewinds it and builds the tree.
func (a *Archiver) buildFromInput(rs io.ReadSeeker) (*HuffTree, int64, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("seek input: %w", err)
	}
	freq, n, err := countFrequencies(rs, a.bufferSize())
	if err != nil {
		return nil, n, err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, n, fmt.Errorf("rewind input: %w", err)
	}
	return a.useTree(freq, "encode"), n, nil
}

func countFrequencies(r io.Reader, bufSize int) (FrequencyTable, int64, error) {
	var counts [256]uint64
	var total int64
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			counts[b]++
		}
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return FrequencyTable{}, total, fmt.Errorf("read input at offset %d: %w", total, err)
		}
	}
	if total > math.MaxUint32 {
		return FrequencyTable{}, total, fmt.Errorf("%w: %d bytes", ErrInputTooLarge, total)
	}

	var freq FrequencyTable
	for sym, c := range counts {
		if c > 0 {
			freq.Set(byte(sym), uint32(c))
		}
	}
	return freq, total, nil
}

// Decode reads an archive from in and writes the original bytes to out.
// An empty archive decodes to nothing. Output written before a format error
// is detected is not rolled back.
func (a *Archiver) Decode(in io.Reader, out io.Writer) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(in, a.bufferSize())

	t, n, err := a.buildFromHeader(br)
	st.InputBytes = n
	if err != nil {
		return st, err
	}
	if t.Empty() {
		logDone(&a.log, "decode", st)
		return st, nil
	}
	st.HeaderSize = n

	freq := t.Frequencies()
	total := freq.Total()
	if limit := a.config.DecodeLimit; limit > 0 && total > uint64(limit) {
		return st, fmt.Errorf("%w: header declares %d bytes, limit %d", ErrDecodeLimit, total, limit)
	}

	bw := bufio.NewWriterSize(out, a.bufferSize())
	root, _ := t.Root()
	if leaf := t.Node(root); leaf.Kind == KindLeaf {
		logHeader(&a.log, "decode", st.HeaderSize)
		written, err := writeRun(bw, leaf.Symbol, uint64(leaf.Weight))
		st.OutputBytes = written
		if err != nil {
			return st, fmt.Errorf("write output: %w", err)
		}
		logDone(&a.log, "decode", st)
		return st, nil
	}

	lastBits, err := br.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return st, formatErrorf(n, err, "read last-byte bit count")
	}
	st.HeaderSize++
	st.InputBytes++
	if lastBits > 7 {
		return st, formatErrorf(n, nil, "last-byte bit count %d out of range", lastBits)
	}
	bits, err := t.payloadBits()
	if err != nil {
		return st, err
	}
	if uint64(lastBits) != bits%8 {
		return st, formatErrorf(n, nil, "last-byte bit count %d, tree needs %d", lastBits, bits%8)
	}
	logHeader(&a.log, "decode", st.HeaderSize)

	w := newDecodeWalk(t, root, total, bw)
	offset := st.HeaderSize
	prev, err := br.ReadByte()
	switch {
	case err == nil:
		for {
			next, err := br.ReadByte()
			if err == io.EOF {
				break
			}
			if err != nil {
				return w.stats(st, offset), fmt.Errorf("read payload at offset %d: %w", offset+1, err)
			}
			if err := w.processByte(prev, 8, offset); err != nil {
				return w.stats(st, offset), err
			}
			offset++
			prev = next
		}
		final := uint(lastBits)
		if final == 0 {
			final = 8
		}
		if err := w.processByte(prev, final, offset); err != nil {
			return w.stats(st, offset), err
		}
		offset++
	case err != io.EOF:
		return st, fmt.Errorf("read payload at offset %d: %w", offset, err)
	}

	st = w.stats(st, offset)
	if w.emitted != total {
		return st, formatErrorf(offset, io.ErrUnexpectedEOF, "payload ends after %d of %d symbols", w.emitted, total)
	}
	if w.cur != root {
		return st, formatErrorf(offset, nil, "payload ends inside a code")
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("write output: %w", err)
	}
	logDone(&a.log, "decode", st)
	return st, nil
}

// buildFromHeader reads the header entries and builds the tree they describe.
func (a *Archiver) buildFromHeader(r io.Reader) (*HuffTree, int64, error) {
	freq, n, err := ReadHeader(r)
	if err != nil {
		return nil, n, err
	}
	return a.useTree(freq, "decode"), n, nil
}

func writeRun(w *bufio.Writer, symbol byte, count uint64) (int64, error) {
	chunk := bytes.Repeat([]byte{symbol}, int(min(count, 4096)))
	var written int64
	for count > 0 {
		k := min(count, uint64(len(chunk)))
		n, err := w.Write(chunk[:k])
		written += int64(n)
		if err != nil {
			return written, err
		}
		count -= k
	}
	return written, w.Flush()
}

// decodeWalk follows payload bits down the tree, emitting a symbol and
// returning to the root at every leaf.
type decodeWalk struct {
	nodes   []TreeNode
	root    NodeID
	cur     NodeID
	emitted uint64
	total   uint64
	out     *bufio.Writer
}

func newDecodeWalk(t *HuffTree, root NodeID, total uint64, out *bufio.Writer) *decodeWalk {
	return &decodeWalk{nodes: t.nodes, root: root, cur: root, total: total, out: out}
}

// processByte consumes the low nbits of b, least significant first.
func (w *decodeWalk) processByte(b byte, nbits uint, offset int64) error {
	for i := uint(0); i < nbits; i++ {
		n := &w.nodes[w.cur]
		if b>>i&1 == 0 {
			w.cur = n.Left
		} else {
			w.cur = n.Right
		}
		next := &w.nodes[w.cur]
		if next.Kind != KindLeaf {
			continue
		}
		if w.emitted == w.total {
			return formatErrorf(offset, nil, "payload holds more than %d symbols", w.total)
		}
		if err := w.out.WriteByte(next.Symbol); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		w.emitted++
		w.cur = w.root
	}
	return nil
}

func (w *decodeWalk) stats(st Stats, offset int64) Stats {
	st.InputBytes = offset
	st.OutputBytes = int64(w.emitted)
	return st
}

// Compress returns the archive of data.
func Compress(data []byte, opts ...Option) ([]byte, error) {
	var out bytes.Buffer
	if _, err := NewArchiver(opts...).Encode(bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress returns the original bytes of an archive.
func Decompress(archive []byte, opts ...Option) ([]byte, error) {
	var out bytes.Buffer
	if _, err := NewArchiver(opts...).Decode(bytes.NewReader(archive), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
