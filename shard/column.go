package shard

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/CrowdStrike/csproto"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

// Protobuf field numbers
const (
	FieldColumnName  = 1
	FieldColumnCells = 2
	FieldColumnKind  = 3

	// TagSize0To15 is the number of bytes taken by a key with tag 1-15
	TagSize0To15 = 1
)

// NewColumn creates a new empty Column
func NewColumn() *Column {
	return &Column{}
}

// NewColumnSize creates a new empty Column and pre-allocates memory for the
// protobuf data to avoid future reallocs. The size is given in bytes.
func NewColumnSize(size int) *Column {
	return &Column{
		data: make([]byte, 0, size),
	}
}

// NewColumnFromData creates a new Column from protobuf data
func NewColumnFromData(data []byte) (*Column, error) {
	c := Column{
		data:    data,
		flushed: true, // do not allow setting top-level fields
	}
	if err := c.indexData(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Column holds the encoded cells of a single column.
// The top-level fields (name and kind) can only be set before any cell data
// is written with Append. If loaded from an existing protobuf, the top-level
// fields are read-only.
type Column struct {
	// Accessed through methods
	name string
	kind table.Kind

	// data contains the written protobuf data. Column only ever appends to this.
	data []byte

	// To keep track of the write state
	dirty   bool // non-cell fields have been modified
	flushed bool // indicates that data have already been written

	cur int // current read offset

	// Some statistics for logging (not persisted)
	NumWrittenCells int64 // Only incremented when writing
}

func (c *Column) Name() string {
	return c.name
}

func (c *Column) Kind() table.Kind {
	return c.kind
}

func (c *Column) SetName(s string) {
	if c.flushed {
		panic("not allowed after fields have been flushed")
	}
	c.name = s
	c.dirty = true
}

func (c *Column) SetKind(k table.Kind) {
	if c.flushed {
		panic("not allowed after fields have been flushed")
	}
	c.kind = k
	c.dirty = true
}

func (c *Column) flushFields() {
	c.flushed = true
	if !c.dirty {
		return
	}
	c.dirty = false
	c.doFlushFields()
}

func (c *Column) doFlushFields() {
	// Large enough for a column name plus the kind varint and tags
	b := make([]byte, 1000)
	offset := 0

	if len(c.name) > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldColumnName, csproto.WireTypeLengthDelimited)
		offset += csproto.EncodeVarint(b[offset:], uint64(len(c.name)))
		offset += copy(b[offset:], c.name)
	}
	if c.kind > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldColumnKind, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(b[offset:], uint64(c.kind))
	}

	c.data = append(c.data, b[:offset]...)
}

// ResetCursor resets the read cursor to the beginning of the buffer
func (c *Column) ResetCursor() {
	c.cur = 0
}

// Marshal returns the currently written protobuf data.
// This implicitly calls flushFields, which will prevent further changes to
// the top-level fields.
// Careful, this does not make a copy.
func (c *Column) Marshal() []byte {
	c.flushFields()
	l := len(c.data)
	return c.data[:l:l]
}

// Size returns the size of the protobuf message.
// This implicitly calls flushFields, which will prevent further changes to
// the top-level fields.
func (c *Column) Size() (n int) {
	c.flushFields()
	return len(c.data)
}

// Next decodes the next cell from the data. It returns io.EOF after the
// last cell.
func (c *Column) Next() (cell Cell, err error) {
	// Only update c.cur at the end to never point into the middle of a
	// message if something went wrong before.
	offset := c.cur

	var tag int
	var wireType csproto.WireType
	for tag != FieldColumnCells {
		if offset >= len(c.data) {
			return cell, io.EOF
		}

		// Get the tag and type
		v, n, err := csproto.DecodeVarint(c.data[offset:])
		if err != nil {
			return cell, err
		}
		offset += n
		tag = int(v >> 3)
		wireType = csproto.WireType(v & 0x7)

		if tag != FieldColumnCells {
			// Skip the tag if not the one we want
			n, err := skipTag(c.data[offset:], wireType)
			if err != nil {
				return cell, err
			}
			offset += n
		}
	}

	// Check wire type
	if err := expectWT(tag, wireType, csproto.WireTypeLengthDelimited); err != nil {
		return cell, err
	}
	// Get the length
	v, n, err := csproto.DecodeVarint(c.data[offset:])
	size := int(v)
	if err != nil {
		return cell, err
	}
	offset += n
	if len(c.data)-offset < size {
		return cell, fmt.Errorf("remaining data too short for indicated size")
	}

	// Unmarshal the data
	b := c.data[offset : offset+size : offset+size]
	offset += size
	c.cur = offset
	err = cell.Unmarshal(b)
	return cell, err
}

// indexData finds all the Column fields, except for the cell entries
func (c *Column) indexData() error {
	var offset = 0
	data := c.data
	c.flushed = true // we do not allow changing top-level keys once this is called

	for {
		if offset >= len(data) {
			return nil
		}

		// Get the tag and type
		v, n, err := csproto.DecodeVarint(data[offset:])
		if err != nil {
			return err
		}
		offset += n
		tag := int(v >> 3)
		wireType := csproto.WireType(v & 0x7)

		switch tag {
		case FieldColumnCells, FieldColumnName:
			// Length delimited fields
			if err := expectWT(tag, wireType, csproto.WireTypeLengthDelimited); err != nil {
				return err
			}
			// Get the length
			v, n, err := csproto.DecodeVarint(data[offset:])
			size := int(v)
			if err != nil {
				return err
			}
			offset += n

			// Actual data
			if len(data)-offset < size {
				return fmt.Errorf("remaining data too short for indicated size")
			}
			b := data[offset : offset+size : offset+size]
			if tag == FieldColumnName {
				c.name = string(b)
			}
			offset += size
		case FieldColumnKind:
			if err := expectWT(tag, wireType, csproto.WireTypeVarint); err != nil {
				return err
			}
			v, n, err := csproto.DecodeVarint(data[offset:])
			if err != nil {
				return err
			}
			offset += n
			c.kind = table.Kind(v)
		default:
			n, err := skipTag(data[offset:], wireType)
			if err != nil {
				return err
			}
			offset += n
		}
	}
}

// Append appends a new cell to the Column protobuf. The data the cell refers
// to is copied in the process. Empty messages are valid cells (non-null
// default values), so every Append adds exactly one cell.
func (c *Column) Append(cell Cell) {
	// Flush top level fields if needed
	if c.dirty {
		c.flushFields()
	}

	c.NumWrittenCells++

	// Start writing here
	offset := len(c.data)

	// Determine the size of the cell message
	var msgSize = 0
	if cell.Null {
		msgSize += TagSize0To15 + 1 // varint bool
	}
	for _, s := range cell.Strings {
		msgSize += TagSize0To15
		msgSize += csproto.SizeOfVarint(uint64(len(s)))
		msgSize += len(s)
	}
	if cell.HasFloat {
		msgSize += TagSize0To15 + 4 // fixed32
	}
	for _, ref := range cell.ImageRefs {
		msgSize += TagSize0To15
		msgSize += csproto.SizeOfVarint(uint64(len(ref)))
		msgSize += len(ref)
	}
	for _, d := range cell.ImageData {
		msgSize += TagSize0To15
		msgSize += csproto.SizeOfVarint(uint64(len(d)))
		msgSize += len(d)
	}
	// Size after wrapping as length delimited data
	outerSize := TagSize0To15 + csproto.SizeOfVarint(uint64(msgSize)) + msgSize

	// Grow data buffer if needed
	if (cap(c.data) - len(c.data)) < outerSize {
		oldSize := cap(c.data)
		newSize := 2 * oldSize
		if oldSize < 5*MB {
			newSize = 10 * MB
		}
		if oldSize > 1024*MB {
			newSize = oldSize + 512*MB
		}
		newData := make([]byte, len(c.data), newSize+outerSize)
		copy(newData, c.data)
		c.data = newData
	}
	// Expand the data slice to make room for the new message
	c.data = c.data[:len(c.data)+outerSize]

	// First write a Column.Cells tag header and size
	offset += csproto.EncodeTag(c.data[offset:], FieldColumnCells, csproto.WireTypeLengthDelimited)
	offset += csproto.EncodeVarint(c.data[offset:], uint64(msgSize))

	// Then write the actual cell fields
	if cell.Null {
		offset += csproto.EncodeTag(c.data[offset:], FieldCellNull, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(c.data[offset:], 1)
	}
	for _, s := range cell.Strings {
		offset += csproto.EncodeTag(c.data[offset:], FieldCellString, csproto.WireTypeLengthDelimited)
		offset += csproto.EncodeVarint(c.data[offset:], uint64(len(s)))
		offset += copy(c.data[offset:], s)
	}
	if cell.HasFloat {
		offset += csproto.EncodeTag(c.data[offset:], FieldCellFloatBits, csproto.WireTypeFixed32)
		binary.LittleEndian.PutUint32(c.data[offset:offset+4], cell.FloatBits)
		offset += 4
	}
	for _, ref := range cell.ImageRefs {
		offset += csproto.EncodeTag(c.data[offset:], FieldCellImageRef, csproto.WireTypeLengthDelimited)
		offset += csproto.EncodeVarint(c.data[offset:], uint64(len(ref)))
		offset += copy(c.data[offset:], ref)
	}
	for _, d := range cell.ImageData {
		offset += csproto.EncodeTag(c.data[offset:], FieldCellImageData, csproto.WireTypeLengthDelimited)
		offset += csproto.EncodeVarint(c.data[offset:], uint64(len(d)))
		offset += copy(c.data[offset:], d)
	}
	_ = offset // silence linter
}

// AsInefficientCellList returns all cells as an inefficient []Cell.
// Only use this for tests.
func (c *Column) AsInefficientCellList() ([]Cell, error) {
	var cells []Cell
	c.ResetCursor()
	for {
		cell, err := c.Next()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			break
		}
		cells = append(cells, cell)
	}
	return cells, nil
}
