package gateways

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// compression identifies the stream wrapper around a tar archive.
type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionBzip2
	compressionXz
	compressionZstd
)

func (c compression) String() string {
	switch c {
	case compressionGzip:
		return "gzip"
	case compressionBzip2:
		return "bzip2"
	case compressionXz:
		return "xz"
	case compressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicZipCD = []byte("PK\x05\x06")
)

func sniffCompression(br *bufio.Reader) compression {
	head, _ := br.Peek(6)
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return compressionGzip
	case bytes.HasPrefix(head, magicBzip2):
		return compressionBzip2
	case bytes.HasPrefix(head, magicXz):
		return compressionXz
	case bytes.HasPrefix(head, magicZstd):
		return compressionZstd
	default:
		return compressionNone
	}
}

// tarStream is a tar reader over a possibly compressed file.
type tarStream struct {
	*tar.Reader
	counter *countingReader
	closers []func() error
}

func (s *tarStream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// next returns the next member header, skipping pax global headers.
func (s *tarStream) next() (*tar.Header, error) {
	for {
		hdr, err := s.Next()
		if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
			// Member paths are checked against the build root on extraction.
			err = nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		return hdr, nil
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// openTarStream opens path and layers the decompressor its magic bytes call for.
func openTarStream(path string) (*tarStream, error) {
	//nolint:gosec // G304: path is a fetched source archive
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	s := &tarStream{closers: []func() error{f.Close}}

	br := bufio.NewReader(f)
	var r io.Reader = br
	switch sniffCompression(br) {
	case compressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		s.closers = append(s.closers, gz.Close)
		r = gz
	case compressionBzip2:
		r = bzip2.NewReader(br)
	case compressionXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	case compressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		s.closers = append(s.closers, func() error { zr.Close(); return nil })
		r = zr
	}

	s.counter = &countingReader{r: r}
	s.Reader = tar.NewReader(s.counter)
	return s, nil
}

// probeTar reports whether path reads as a tar archive. An archive made of
// end-of-archive blocks only is an empty tar.
func probeTar(path string) bool {
	s, err := openTarStream(path)
	if err != nil {
		return false
	}
	//nolint:errcheck // Defer close on read-only stream
	defer s.Close()

	_, err = s.next()
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF):
		return s.counter.n >= 2*512
	default:
		return false
	}
}

// probeZip reports whether path ends with a zip end-of-central-directory
// record. The directory itself is only parsed when members are listed.
func probeZip(path string) bool {
	//nolint:gosec // G304: path is a fetched source archive
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() < 22 {
		return false
	}
	// The record is 22 bytes plus a comment of at most 64KiB.
	window := int64(22 + 65535)
	if window > info.Size() {
		window = info.Size()
	}
	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, info.Size()-window); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.LastIndex(buf, magicZipCD) >= 0
}
