package shard

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/CrowdStrike/csproto"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

// Protobuf field numbers
const (
	FieldCellNull      = 1
	FieldCellString    = 2 // repeated
	FieldCellFloatBits = 3
	FieldCellImageRef  = 4 // repeated, aligned with FieldCellImageData
	FieldCellImageData = 5 // repeated
)

// Cell is one encoded column cell. The column kind decides how the fields
// are interpreted: a string cell uses Strings[0], a list cell all of Strings,
// an image cell ImageRefs/ImageData. An empty message is a non-null default
// value, a null cell always carries the Null field.
type Cell struct {
	Null      bool
	Strings   []string
	FloatBits uint32
	HasFloat  bool
	ImageRefs []string
	ImageData [][]byte
}

func (c *Cell) Unmarshal(data []byte) error {
	// Special purpose parsing code for speed (no pointer allocs with NewDecoder)
	offset := 0
	dataSize := len(data)
	for offset < dataSize {
		// Get the tag and type
		v, n, err := csproto.DecodeVarint(data[offset:])
		if err != nil {
			return err
		}
		offset += n
		tag := int(v >> 3)
		wireType := csproto.WireType(v & 0x7)

		switch tag {
		case FieldCellString, FieldCellImageRef, FieldCellImageData:
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
			if dataSize-offset < size {
				return fmt.Errorf("remaining data too short for indicated size")
			}
			b := data[offset : offset+size : offset+size]
			offset += size
			switch tag {
			case FieldCellString:
				c.Strings = append(c.Strings, string(b))
			case FieldCellImageRef:
				c.ImageRefs = append(c.ImageRefs, string(b))
			case FieldCellImageData:
				c.ImageData = append(c.ImageData, b)
			}
		case FieldCellNull:
			if err := expectWT(tag, wireType, csproto.WireTypeVarint); err != nil {
				return err
			}
			v, n, err := csproto.DecodeVarint(data[offset:])
			if err != nil {
				return err
			}
			offset += n
			c.Null = v != 0
		case FieldCellFloatBits:
			if err := expectWT(tag, wireType, csproto.WireTypeFixed32); err != nil {
				return err
			}
			if dataSize-offset < 4 {
				return fmt.Errorf("remaining data too short for fixed32")
			}
			c.FloatBits = binary.LittleEndian.Uint32(data[offset : offset+4])
			c.HasFloat = true
			offset += 4
		default:
			n, err := skipTag(data[offset:], wireType)
			if err != nil {
				return err
			}
			offset += n
		}
	}
	return nil
}

func cellFromValue(v table.Value) Cell {
	if v.IsNull() {
		return Cell{Null: true}
	}
	switch v.Kind() {
	case table.String:
		return Cell{Strings: []string{v.Str()}}
	case table.Float:
		return Cell{FloatBits: math.Float32bits(v.Float32()), HasFloat: true}
	case table.StringList:
		return Cell{Strings: v.Strings()}
	case table.Image, table.ImageList:
		c := Cell{}
		embedded := false
		for _, img := range v.Images() {
			c.ImageRefs = append(c.ImageRefs, img.Ref)
			if img.Data != nil {
				embedded = true
			}
		}
		if embedded {
			for _, img := range v.Images() {
				c.ImageData = append(c.ImageData, img.Data)
			}
		}
		return c
	default:
		panic(fmt.Sprintf("unhandled kind %v", v.Kind()))
	}
}

func valueFromCell(k table.Kind, c Cell) (table.Value, error) {
	if c.Null {
		return table.Null(k), nil
	}
	switch k {
	case table.String:
		if len(c.Strings) == 0 {
			return table.StringValue(""), nil
		}
		return table.StringValue(c.Strings[0]), nil
	case table.Float:
		return table.FloatValue(math.Float32frombits(c.FloatBits)), nil
	case table.StringList:
		return table.StringListValue(c.Strings), nil
	case table.Image, table.ImageList:
		if len(c.ImageData) > 0 && len(c.ImageData) != len(c.ImageRefs) {
			return table.Value{}, fmt.Errorf("%d image payloads for %d refs",
				len(c.ImageData), len(c.ImageRefs))
		}
		if k == table.Image && len(c.ImageRefs) != 1 {
			return table.Value{}, fmt.Errorf("image cell has %d refs", len(c.ImageRefs))
		}
		imgs := make([]table.ImageRef, len(c.ImageRefs))
		for i, ref := range c.ImageRefs {
			imgs[i].Ref = ref
			if len(c.ImageData) > 0 {
				imgs[i].Data = c.ImageData[i]
			}
		}
		return table.ImageRefsValue(k, imgs), nil
	default:
		return table.Value{}, fmt.Errorf("unhandled kind %v", k)
	}
}
