package gateways

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// testMember describes one archive entry. Names ending in "/" are directories.
type testMember struct {
	name     string
	body     string
	linkname string
	mode     int64
}

var contentPrefix = []testMember{
	{name: "common-prefix/"},
	{name: "common-prefix/file1", body: "file1"},
	{name: "common-prefix/dir/"},
	{name: "common-prefix/dir/file2", body: "file2"},
}

var contentSubdir = []testMember{
	{name: "dir1/"},
	{name: "dir1/file1", body: "file1"},
	{name: "dir2/"},
	{name: "dir2/file2", body: "file2"},
	{name: "file.c", body: "int main(void) { return 0; }\n"},
}

func tarBytes(t *testing.T, members []testMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0644}
		if m.mode != 0 {
			hdr.Mode = m.mode
		}
		switch {
		case m.linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = m.linkname
		case strings.HasSuffix(m.name, "/"):
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(m.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s) error = %v", m.name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, m.body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeTar writes members as a tar archive, compressed according to the
// file extension of name.
func writeTar(t *testing.T, dir, name string, members []testMember) string {
	t.Helper()
	raw := tarBytes(t, members)

	var buf bytes.Buffer
	var w io.WriteCloser
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		w = gzip.NewWriter(&buf)
	case strings.HasSuffix(name, ".xz"):
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w = xw
	case strings.HasSuffix(name, ".zst"):
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w = zw
	}
	if w == nil {
		buf.Write(raw)
	} else {
		if _, err := w.Write(raw); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	return writeBytes(t, dir, name, buf.Bytes())
}

func writeZip(t *testing.T, dir, name string, members []testMember) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		if m.linkname != "" {
			hdr := &zip.FileHeader{Name: m.name, Method: zip.Store}
			hdr.SetMode(fs.ModeSymlink | 0777)
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				t.Fatalf("CreateHeader(%s) error = %v", m.name, err)
			}
			if _, err := io.WriteString(w, m.linkname); err != nil {
				t.Fatal(err)
			}
			continue
		}
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", m.name, err)
		}
		if !strings.HasSuffix(m.name, "/") {
			if _, err := io.WriteString(w, m.body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return writeBytes(t, dir, name, buf.Bytes())
}

func writeBytes(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// corruptTar returns a tar whose first header is valid and whose second is not.
func corruptTar(t *testing.T) []byte {
	t.Helper()
	raw := tarBytes(t, []testMember{
		{name: "pkg-1.0/a", body: "a"},
		{name: "pkg-1.0/b", body: "b"},
	})
	copy(raw[1024:], "XXXXXXXX")
	return raw
}

// corruptZip returns bytes ending in an end-of-central-directory record that
// points at a central directory which is not there.
func corruptZip() []byte {
	data := bytes.Repeat([]byte{'x'}, 64)
	eocd := make([]byte, 22)
	copy(eocd, "PK\x05\x06")
	binary.LittleEndian.PutUint16(eocd[8:], 1)
	binary.LittleEndian.PutUint16(eocd[10:], 1)
	binary.LittleEndian.PutUint32(eocd[12:], 46)
	binary.LittleEndian.PutUint32(eocd[16:], 0)
	return append(data, eocd...)
}
