package bids

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// WriteTestNIfTI writes a minimal structurally valid NIfTI-1 file to path,
// gzipped when the path ends in .gz. Parent directories are created.
// This is a test helper, also used by the dataset builder tests.
func WriteTestNIfTI(path string) error {
	hdr := make([]byte, niftiHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], niftiHeaderSize)
	binary.LittleEndian.PutUint16(hdr[niftiDimOffset:niftiDimOffset+2], 3)
	copy(hdr[niftiMagicOffset:], "n+1\x00")
	// A token voxel payload so the file is not just a header
	data := append(hdr, []byte{1, 2, 3, 4}...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		g := gzip.NewWriter(f)
		defer g.Close()
		w = g
	}
	_, err = w.Write(data)
	return err
}
