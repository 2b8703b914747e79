// Package shard implements the on-the-wire shard format: a gzipped protobuf
// holding shard metadata plus one append-only encoded column per schema
// field, and the blob naming scheme used in the remote store.
package shard

import (
	"fmt"
	"io"

	"github.com/CrowdStrike/csproto"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

// Protobuf field numbers
const (
	FieldShardFormatVersion = 1
	FieldShardMeta          = 2
	FieldShardColumn        = 3
	FieldShardCompatVersion = 4
)

// Shard is the root object in a shard protobuf
type Shard struct {
	FormatVersion uint32 // version of this shard format
	CompatVersion uint32 // compatible with clients that support at least this version
	Meta          Meta
	Columns       []*Column
}

// New returns an empty shard with the current format versions set.
func New(meta Meta) *Shard {
	return &Shard{
		FormatVersion: CurrentFormatVersion,
		CompatVersion: WriteCompatFormatVersion,
		Meta:          meta,
	}
}

// FromTable encodes a table into a shard. The table must pass CheckColumns.
// Meta.RowCount is filled from the table.
func FromTable(tbl *table.Table, meta Meta) (*Shard, error) {
	if err := tbl.CheckColumns(); err != nil {
		return nil, err
	}
	meta.RowCount = int64(tbl.NumRows())
	s := New(meta)
	for _, f := range tbl.Schema {
		col := NewColumn()
		col.SetName(f.Name)
		col.SetKind(f.Kind)
		for _, row := range tbl.Rows {
			col.Append(cellFromValue(row[f.Name]))
		}
		s.Columns = append(s.Columns, col)
	}
	return s, nil
}

// Table decodes the shard back into a table. Column cell counts must match
// Meta.RowCount.
func (s *Shard) Table() (*table.Table, error) {
	schema := make(table.Schema, len(s.Columns))
	for i, c := range s.Columns {
		schema[i] = table.Field{Name: c.Name(), Kind: c.Kind()}
	}
	tbl := table.New(schema)
	rows := make([]table.Row, s.Meta.RowCount)
	for i := range rows {
		rows[i] = make(table.Row, len(schema))
	}
	for _, c := range s.Columns {
		c.ResetCursor()
		var n int
		for {
			cell, err := c.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name(), err)
			}
			if n >= len(rows) {
				return nil, fmt.Errorf("column %q: more than %d cells", c.Name(), len(rows))
			}
			v, err := valueFromCell(c.Kind(), cell)
			if err != nil {
				return nil, fmt.Errorf("column %q cell %d: %w", c.Name(), n, err)
			}
			rows[n][c.Name()] = v
			n++
		}
		if int64(n) != s.Meta.RowCount {
			return nil, fmt.Errorf("column %q: %d cells, expected %d rows",
				c.Name(), n, s.Meta.RowCount)
		}
	}
	tbl.Rows = rows
	return tbl, nil
}

func (s *Shard) Unmarshal(data []byte) error {
	d := csproto.NewDecoder(data)
	d.SetMode(csproto.DecoderModeFast)
	for d.More() {
		tag, wireType, err := d.DecodeTag()
		if err != nil {
			return err
		}
		switch tag {
		case FieldShardFormatVersion:
			s.FormatVersion, err = getUInt32(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldShardCompatVersion:
			s.CompatVersion, err = getUInt32(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldShardMeta:
			msg, err := getBytes(d, tag, wireType)
			if err != nil {
				return err
			}
			if err := s.Meta.Unmarshal(msg); err != nil {
				return err
			}
		case FieldShardColumn:
			msg, err := getBytes(d, tag, wireType)
			if err != nil {
				return err
			}
			col, err := NewColumnFromData(msg)
			if err != nil {
				return err
			}
			s.Columns = append(s.Columns, col)
		default:
			if _, err := d.Skip(tag, wireType); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTo writes the shard protobuf to w. The column data is already
// marshaled, so this is mostly a sequence of large copies.
func (s *Shard) WriteTo(w io.Writer) (n int64, err error) {
	b := make([]byte, 100) // scratch for tags, varints and the meta message

	writeRaw := func(data []byte) error {
		nn, err := w.Write(data)
		n += int64(nn)
		return err
	}
	writeVarintField := func(tag int, val uint64) error {
		offset := csproto.EncodeTag(b, tag, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(b[offset:], val)
		return writeRaw(b[:offset])
	}
	writeBytesHeader := func(tag int, size int) error {
		offset := csproto.EncodeTag(b, tag, csproto.WireTypeLengthDelimited)
		offset += csproto.EncodeVarint(b[offset:], uint64(size))
		return writeRaw(b[:offset])
	}

	if err := writeVarintField(FieldShardFormatVersion, uint64(s.FormatVersion)); err != nil {
		return n, err
	}
	if err := writeVarintField(FieldShardCompatVersion, uint64(s.CompatVersion)); err != nil {
		return n, err
	}

	metaData := s.Meta.Marshal()
	if err := writeBytesHeader(FieldShardMeta, len(metaData)); err != nil {
		return n, err
	}
	if err := writeRaw(metaData); err != nil {
		return n, err
	}

	for _, col := range s.Columns {
		colData := col.Marshal()
		if err := writeBytesHeader(FieldShardColumn, len(colData)); err != nil {
			return n, err
		}
		if err := writeRaw(colData); err != nil {
			return n, err
		}
	}
	return n, nil
}
