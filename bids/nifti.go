package bids

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NIfTI-1 header layout constants
const (
	niftiHeaderSize  = 348
	niftiMagicOffset = 344
	niftiDimOffset   = 40
)

// CheckNIfTIHeader reads just the NIfTI-1 header of a .nii or .nii.gz file
// and verifies that it is structurally sane. It never materializes voxel
// data, so it is cheap enough for spot checks over large downloads.
func CheckNIfTIHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		g, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer g.Close()
		r = g
	}

	hdr := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	// sizeof_hdr must be 348 in the file's native byte order
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(hdr[0:4]) != niftiHeaderSize {
		if binary.BigEndian.Uint32(hdr[0:4]) != niftiHeaderSize {
			return fmt.Errorf("bad sizeof_hdr: not a NIfTI-1 file")
		}
		order = binary.BigEndian
	}

	magic := string(hdr[niftiMagicOffset : niftiMagicOffset+3])
	if magic != "n+1" && magic != "ni1" {
		return fmt.Errorf("bad magic %q", magic)
	}

	ndim := int16(order.Uint16(hdr[niftiDimOffset : niftiDimOffset+2]))
	if ndim < 1 || ndim > 7 {
		return fmt.Errorf("bad dim[0]: %d", ndim)
	}
	return nil
}
