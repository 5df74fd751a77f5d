package huff

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// ============================================================================
// Helper Functions
// ============================================================================

// cbcacbc is the archive of "cbcacbc".
var cbcacbc = []byte{
	2, 'a', 1, 0, 0, 0,
	'b', 2, 0, 0, 0,
	'c', 4, 0, 0, 0, 2,
	0b01001101,
	0b00000011,
}

func mustCompress(t testing.TB, data []byte, opts ...Option) []byte {
	t.Helper()
	archive, err := Compress(data, opts...)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	return archive
}

func roundTrip(t testing.TB, data []byte, opts ...Option) {
	t.Helper()
	archive := mustCompress(t, data, opts...)
	got, err := Decompress(archive, opts...)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes want %d", len(got), len(data))
	}
}

// onlyReader hides the io.Seeker of the wrapped reader.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

// ============================================================================
// Encode
// ============================================================================

func TestEncode(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		want   []byte
		header int64
	}{
		{"mixed symbols", "cbcacbc", cbcacbc, 17},
		{"one repeating symbol", "aaaaaaaaaa", []byte{0, 'a', 0x0a, 0, 0, 0}, 6},
		{"empty input", "", nil, 0},
		{"payload fills last byte", "aaaabbbb", []byte{1, 'a', 4, 0, 0, 0, 'b', 4, 0, 0, 0, 0, 0b11110000}, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			st, err := NewArchiver().Encode(strings.NewReader(tc.in), &out)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(out.Bytes(), tc.want) {
				t.Fatalf("got %v want %v", out.Bytes(), tc.want)
			}
			if st.HeaderSize != tc.header {
				t.Fatalf("header size: got %d want %d", st.HeaderSize, tc.header)
			}
			if st.InputBytes != int64(len(tc.in)) || st.OutputBytes != int64(len(tc.want)) {
				t.Fatalf("stats: got %+v", st)
			}
		})
	}
}

func TestEncodeBuildsTreeFromInput(t *testing.T) {
	a := NewArchiver()
	if _, err := a.Encode(strings.NewReader("cbcacbc"), io.Discard); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	checkABC(t, a.Tree())
}

func TestEncodeDeterministic(t *testing.T) {
	data := []byte("How great that everything runs smoothly!")
	first := mustCompress(t, data)
	second := mustCompress(t, data)
	if !bytes.Equal(first, second) {
		t.Fatalf("two encodings differ")
	}
}

func TestEncodeNonSeekableInput(t *testing.T) {
	var out bytes.Buffer
	st, err := NewArchiver().Encode(onlyReader{strings.NewReader("cbcacbc")}, &out)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), cbcacbc) {
		t.Fatalf("got %v want %v", out.Bytes(), cbcacbc)
	}
	if st.InputBytes != 7 {
		t.Fatalf("input bytes: got %d want 7", st.InputBytes)
	}
}

func TestEncodeFromMidStream(t *testing.T) {
	r := strings.NewReader("xxcbcacbc")
	if _, err := r.Seek(2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := NewArchiver().Encode(r, &out); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), cbcacbc) {
		t.Fatalf("got %v want %v", out.Bytes(), cbcacbc)
	}
}

func TestEncodeWriteError(t *testing.T) {
	_, err := NewArchiver().Encode(strings.NewReader("cbcacbc"), failingWriter{})
	if !errors.Is(err, errBrokenPipe) {
		t.Fatalf("got %v want %v", err, errBrokenPipe)
	}
}

// ============================================================================
// Decode
// ============================================================================

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		in     []byte
		want   string
		header int64
	}{
		{"mixed symbols", cbcacbc, "cbcacbc", 17},
		{"one repeating symbol", []byte{0, 'a', 10, 0, 0, 0}, "aaaaaaaaaa", 6},
		{"empty archive", nil, "", 0},
		{"payload fills last byte", []byte{1, 'a', 4, 0, 0, 0, 'b', 4, 0, 0, 0, 0, 0b11110000}, "aaaabbbb", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			st, err := NewArchiver().Decode(bytes.NewReader(tc.in), &out)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.String() != tc.want {
				t.Fatalf("got %q want %q", out.String(), tc.want)
			}
			if st.HeaderSize != tc.header {
				t.Fatalf("header size: got %d want %d", st.HeaderSize, tc.header)
			}
			if st.InputBytes != int64(len(tc.in)) || st.OutputBytes != int64(len(tc.want)) {
				t.Fatalf("stats: got %+v", st)
			}
		})
	}
}

func TestDecodeBuildsTreeFromHeader(t *testing.T) {
	a := NewArchiver()
	in := []byte{2, 'a', 1, 0, 0, 0, 'b', 2, 0, 0, 0, 'c', 4, 0, 0, 0}
	tree, _, err := a.buildFromHeader(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("buildFromHeader: %v", err)
	}
	checkABC(t, tree)
	if a.Tree() != tree {
		t.Fatalf("archiver does not expose the rebuilt tree")
	}
}

func TestDecodeEmptyLeavesEmptyTree(t *testing.T) {
	a := NewArchiver()
	if _, err := a.Decode(bytes.NewReader(nil), io.Discard); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := a.Tree().Root(); !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("Root: got %v want ErrEmptyTree", err)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
	}{
		{"truncated entry", []byte{2, 'a', 1, 0, 0, 0, 'b', '~', '~'}},
		{"missing bit count", []byte{2, 'a', 1, 0, 0, 0, 'b', 2, 0, 0, 0, 'c', 4, 0, 0, 0}},
		{"bit count out of range", []byte{1, 'a', 4, 0, 0, 0, 'b', 4, 0, 0, 0, 9, 0xf0}},
		{"bit count disagrees with tree", []byte{1, 'a', 4, 0, 0, 0, 'b', 4, 0, 0, 0, 3, 0xf0}},
		{"payload missing", cbcacbc[:17]},
		{"payload truncated", []byte{1, 'a', 8, 0, 0, 0, 'b', 8, 0, 0, 0, 0, 0x00}},
		{"payload too long", append(append([]byte(nil), cbcacbc...), 0xff)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewArchiver().Decode(bytes.NewReader(tc.in), io.Discard)
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("got %v want ErrFormat", err)
			}
		})
	}
}

func TestDecodeRejectsPayloadEndingInsideCode(t *testing.T) {
	// a=00 b=01 c=1: "ccca" uses five of the six declared bits and the
	// sixth stops on an internal node.
	tree := NewHuffTree(tableOf(map[byte]uint32{'a': 1, 'b': 1, 'c': 2}))
	if bits, _ := tree.payloadBits(); bits != 6 {
		t.Fatalf("payload bits: got %d want 6", bits)
	}
	in := []byte{2, 'a', 1, 0, 0, 0, 'b', 1, 0, 0, 0, 'c', 2, 0, 0, 0, 6, 0b00000111}
	var out bytes.Buffer
	_, err := NewArchiver().Decode(bytes.NewReader(in), &out)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("got %v want ErrFormat", err)
	}
	if !strings.Contains(err.Error(), "inside a code") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeLimit(t *testing.T) {
	archive := []byte{0, 'a', 0xff, 0xff, 0xff, 0xff}
	var out bytes.Buffer
	_, err := NewArchiver(WithDecodeLimit(1<<20)).Decode(bytes.NewReader(archive), &out)
	if !errors.Is(err, ErrDecodeLimit) {
		t.Fatalf("got %v want ErrDecodeLimit", err)
	}
	if out.Len() != 0 {
		t.Fatalf("wrote %d bytes past the limit check", out.Len())
	}

	roundTrip(t, []byte("within the limit"), WithDecodeLimit(64))
}

func TestDecodeIgnoresTrailingBytesAfterSingleLeaf(t *testing.T) {
	var out bytes.Buffer
	st, err := NewArchiver().Decode(bytes.NewReader([]byte{0, 'z', 3, 0, 0, 0, 0xAA, 0xBB}), &out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.String() != "zzz" || st.HeaderSize != 6 {
		t.Fatalf("got %q header %d want zzz header 6", out.String(), st.HeaderSize)
	}
}

// ============================================================================
// Round trips
// ============================================================================

func TestRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"sentence":        []byte("How great that everything runs smoothly!"),
		"one symbol":      []byte("aaaaaaaaaa"),
		"empty":           {},
		"last byte full":  []byte("aaaabbbb"),
		"single byte":     {0x00},
		"two symbols":     {0xff, 0x00, 0xff},
		"all byte values": allBytes(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			roundTrip(t, data)
		})
	}
}

func allBytes() []byte {
	b := make([]byte, 0, 256*3)
	for r := 0; r < 3; r++ {
		for i := 0; i < 256; i++ {
			b = append(b, byte(i))
		}
	}
	return b
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		n := rng.Intn(4096)
		alphabet := 1 + rng.Intn(256)
		data := make([]byte, n)
		for j := range data {
			// Skewed distribution so code lengths vary.
			data[j] = byte(rng.Intn(alphabet) * rng.Intn(alphabet) / alphabet)
		}
		roundTrip(t, data)
	}
}

func TestRoundTripFibonacciWeights(t *testing.T) {
	// Fibonacci counts give the deepest possible tree for their size.
	var data []byte
	a, b := 1, 1
	for sym := 0; sym < 20; sym++ {
		data = append(data, bytes.Repeat([]byte{byte('A' + sym)}, a)...)
		a, b = b, a+b
	}
	roundTrip(t, data)

	tree := NewHuffTree(mustFrequencies(t, data))
	code, err := tree.Code('A')
	if err != nil {
		t.Fatal(err)
	}
	if code.Len != 19 {
		t.Fatalf("deepest code: got %d bits want 19", code.Len)
	}
}

func mustFrequencies(t testing.TB, data []byte) FrequencyTable {
	t.Helper()
	freq, _, err := countFrequencies(bytes.NewReader(data), 16)
	if err != nil {
		t.Fatal(err)
	}
	return freq
}

func TestAllTestdataFiles(t *testing.T) {
	files, err := os.ReadDir("testdata")
	if err != nil {
		t.Fatalf("Failed to read testdata directory: %v", err)
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		t.Run(file.Name(), func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("testdata", file.Name()))
			if err != nil {
				t.Fatalf("Failed to read %s: %v", file.Name(), err)
			}
			archive := mustCompress(t, data)
			if len(archive) >= len(data) {
				t.Errorf("no compression: %d -> %d bytes", len(data), len(archive))
			}
			got, err := Decompress(archive)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

// ============================================================================
// Options
// ============================================================================

func TestTreeCache(t *testing.T) {
	a := NewArchiver(WithTreeCache(4))
	var first bytes.Buffer
	if _, err := a.Encode(strings.NewReader("cbcacbc"), &first); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	built := a.Tree()

	// Same frequencies, different order: the cached tree is reused.
	var second bytes.Buffer
	if _, err := a.Encode(strings.NewReader("ccccbba"), &second); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Tree() != built {
		t.Fatalf("expected cache hit for an identical frequency table")
	}
	if a.cache.len() != 1 {
		t.Fatalf("cache size: got %d want 1", a.cache.len())
	}

	var out bytes.Buffer
	if _, err := a.Decode(bytes.NewReader(second.Bytes()), &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.String() != "ccccbba" {
		t.Fatalf("got %q want ccccbba", out.String())
	}
	if a.Tree() != built {
		t.Fatalf("decode did not reuse the cached tree")
	}

	if _, err := a.Encode(strings.NewReader("xyz"), io.Discard); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Tree() == built || a.cache.len() != 2 {
		t.Fatalf("expected a new cached tree for a new table")
	}
}

func TestTreeCacheIgnoresRebuiltTree(t *testing.T) {
	a := NewArchiver(WithTreeCache(4))
	if _, err := a.Encode(strings.NewReader("cbcacbc"), io.Discard); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	a.Tree().Build(tableOf(map[byte]uint32{'x': 1, 'y': 9}))

	var out bytes.Buffer
	if _, err := a.Encode(strings.NewReader("cbcacbc"), &out); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), cbcacbc) {
		t.Fatalf("got %v want %v", out.Bytes(), cbcacbc)
	}
	checkABC(t, a.Tree())
}

func TestTreeCacheDisabled(t *testing.T) {
	a := NewArchiver(WithTreeCache(0))
	if a.cache != nil {
		t.Fatalf("cache enabled for size 0")
	}
	if _, err := a.Encode(strings.NewReader("cbcacbc"), io.Discard); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	first := a.Tree()
	if _, err := a.Encode(strings.NewReader("cbcacbc"), io.Discard); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Tree() == first {
		t.Fatalf("tree reused without a cache")
	}
}

func TestWithBufferSize(t *testing.T) {
	data := bytes.Repeat([]byte("buffer boundaries "), 100)
	roundTrip(t, data, WithBufferSize(7))
}

func TestWithLogger(t *testing.T) {
	var logs bytes.Buffer
	l := zerolog.New(&logs).Level(zerolog.DebugLevel)
	roundTrip(t, []byte("cbcacbc"), WithLogger(l))
	for _, want := range []string{`"op":"encode"`, `"op":"decode"`, `"header_size":17`, `"symbols":3`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %s:\n%s", want, logs.String())
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.Disabled,
		"verbose": zerolog.Disabled,
	}
	for name, want := range cases {
		if got := NewLogger(name, io.Discard).GetLevel(); got != want {
			t.Errorf("%q: got %v want %v", name, got, want)
		}
	}
}
