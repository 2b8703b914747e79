package table

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EmbedImages replaces every image path reference in the table with the
// file's contents, keeping only the basename as the ref. Call this on a
// materialized shard, not on the full table, so only one shard's payloads
// are resident at a time.
func (t *Table) EmbedImages() error {
	for i, row := range t.Rows {
		for name, v := range row {
			if v.null || (v.kind != Image && v.kind != ImageList) {
				continue
			}
			for j := range v.imgs {
				img := &v.imgs[j]
				if img.Data != nil {
					continue // already embedded
				}
				data, err := os.ReadFile(img.Ref)
				if err != nil {
					return errors.Wrapf(err, "embed row %d column %q", i, name)
				}
				img.Data = data
				img.Ref = filepath.Base(img.Ref)
			}
			row[name] = v
		}
	}
	return nil
}

// PayloadBytes sums the embedded payload sizes across the table. It reports
// 0 before EmbedImages has run.
func (t *Table) PayloadBytes() int64 {
	var total int64
	for _, row := range t.Rows {
		for _, v := range row {
			for _, img := range v.imgs {
				total += int64(len(img.Data))
			}
		}
	}
	return total
}
