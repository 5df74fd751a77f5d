// Command huff compresses and decompresses files with static Huffman coding.
//
//	huff -c -f input -o archive
//	huff -u -f archive -o output
//	huff -c -f 'logs/**/*.log' -o archives/
//
// A single file prints three lines: for -c the input size, the payload size
// and the header size; for -u the payload size, the output size and the
// header size. When -f is a glob pattern every matching file is processed
// into the -o directory and one line is printed per file.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/therootcompany/xz"

	"github.com/seiflotfy/huff"
)

const archiveExt = ".huf"

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

var errVerify = errors.New("verification failed")

type options struct {
	compress   bool
	decompress bool
	verify     bool
	verbose    bool
	in         string
	out        string
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "huff: %v\n", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("huff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&o.compress, "c", false, "compress the input")
	fs.BoolVar(&o.decompress, "u", false, "decompress the input")
	fs.StringVar(&o.in, "f", "", "input file or glob pattern")
	fs.StringVar(&o.out, "o", "", "output file, or output directory for a glob")
	fs.BoolVar(&o.verify, "verify", false, "decode each new archive and compare it with the input")
	fs.BoolVar(&o.verbose, "v", false, "debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case o.compress == o.decompress:
		return nil, errors.New("exactly one of -c and -u is required")
	case o.in == "":
		return nil, errors.New("missing input file (-f)")
	case o.out == "":
		return nil, errors.New("missing output file (-o)")
	case o.verify && o.decompress:
		return nil, errors.New("-verify only applies to -c")
	}
	return &o, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	log := huff.Logger
	if o.verbose {
		log = huff.NewLogger("debug", stderr)
	}
	a := huff.NewArchiver(huff.WithLogger(log), huff.WithTreeCache(16))

	if isPattern(o.in) {
		return runBatch(a, o, log, stdout)
	}

	st, err := processFile(a, o, o.in, o.out)
	if err != nil {
		return err
	}
	in, payload, header := summary(o, st)
	fmt.Fprintln(stdout, in)
	fmt.Fprintln(stdout, payload)
	fmt.Fprintln(stdout, header)
	return nil
}

// isPattern reports whether path should be expanded as a glob. An existing
// file is always taken literally.
func isPattern(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}
	return strings.ContainsAny(path, "*?[{")
}

func runBatch(a *huff.Archiver, o *options, log zerolog.Logger, stdout io.Writer) error {
	matches, err := doublestar.FilepathGlob(o.in, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %q: %w", o.in, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no files match %q", o.in)
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(o.in))
	base = filepath.FromSlash(base)

	// Map every match before writing so colliding outputs fail up front.
	dsts := make([]string, len(matches))
	seen := make(map[string]string, len(matches))
	for i, path := range matches {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		dst := filepath.Join(o.out, outputName(o, rel))
		if prev, ok := seen[dst]; ok {
			return fmt.Errorf("%s and %s both map to %s", prev, path, dst)
		}
		seen[dst] = path
		dsts[i] = dst
	}

	for i, path := range matches {
		dst := dsts[i]
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		log.Debug().Str("in", path).Str("out", dst).Msg("processing")
		st, err := processFile(a, o, path, dst)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		in, payload, header := summary(o, st)
		fmt.Fprintf(stdout, "%s %d %d %d\n", path, in, payload, header)
	}
	return nil
}

// outputName maps an input path relative to the glob base to its output
// path relative to the -o directory.
func outputName(o *options, rel string) string {
	if o.compress {
		return rel + archiveExt
	}
	dir, base := filepath.Split(rel)
	if name, ok := strings.CutSuffix(base, archiveExt); ok && name != "" {
		return dir + name
	}
	return rel + ".out"
}

// summary orders the stats the way they are printed.
func summary(o *options, st huff.Stats) (in, payload, header int64) {
	if o.compress {
		return st.InputBytes, st.OutputBytes - st.HeaderSize, st.HeaderSize
	}
	return st.InputBytes - st.HeaderSize, st.OutputBytes, st.HeaderSize
}

func processFile(a *huff.Archiver, o *options, src, dst string) (huff.Stats, error) {
	in, err := os.Open(src)
	if err != nil {
		return huff.Stats{}, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return huff.Stats{}, err
	}
	defer out.Close()

	var (
		st   huff.Stats
		want uint64
	)
	if o.compress {
		st, want, err = encodeFile(a, o, in, out)
	} else {
		st, err = a.Decode(in, out)
	}
	if err != nil {
		return st, err
	}
	if err := out.Close(); err != nil {
		return st, err
	}

	if o.verify {
		if err := verifyArchive(a, dst, want); err != nil {
			return st, err
		}
	}
	return st, nil
}

// encodeFile encodes in to out. With -verify it also returns the xxhash
// digest of the encoded input.
func encodeFile(a *huff.Archiver, o *options, in *os.File, out io.Writer) (huff.Stats, uint64, error) {
	src, err := openInput(in)
	if err != nil {
		return huff.Stats{}, 0, err
	}
	var digest *xxhash.Digest
	if o.verify {
		// The digest must see each byte once, so the input is read in a
		// single pass.
		digest = xxhash.New()
		src = io.TeeReader(src, digest)
	}

	w := bufio.NewWriter(out)
	st, err := a.Encode(src, w)
	if err != nil {
		return st, 0, err
	}
	if err := w.Flush(); err != nil {
		return st, 0, err
	}
	if digest == nil {
		return st, 0, nil
	}
	return st, digest.Sum64(), nil
}

// openInput returns the file itself, or a decompressing reader when the
// file is xz compressed.
func openInput(f *os.File) (io.Reader, error) {
	magic := make([]byte, len(xzMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if n < len(xzMagic) || !bytes.Equal(magic, xzMagic) {
		return f, nil
	}
	r, err := xz.NewReader(f, xz.DefaultDictMax)
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	return r, nil
}

func verifyArchive(a *huff.Archiver, archive string, want uint64) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	digest := xxhash.New()
	if _, err := a.Decode(f, digest); err != nil {
		return fmt.Errorf("%w: %w", errVerify, err)
	}
	if got := digest.Sum64(); got != want {
		return fmt.Errorf("%w: digest %016x, want %016x", errVerify, got, want)
	}
	return nil
}
