package shard

import (
	"encoding/binary"

	"github.com/CrowdStrike/csproto"
)

// Protobuf field numbers
const (
	FieldMetaDatasetName   = 1
	FieldMetaSplitName     = 2
	FieldMetaShardIndex    = 3
	FieldMetaShardCount    = 4
	FieldMetaRowCount      = 5
	FieldMetaHostname      = 6
	FieldMetaInstanceID    = 7
	FieldMetaTimestampNano = 8
)

type Meta struct {
	DatasetName   string
	SplitName     string
	ShardIndex    uint32 // zero-based
	ShardCount    uint32
	RowCount      int64
	Hostname      string
	InstanceID    string
	TimestampNano uint64
}

func (m *Meta) Marshal() []byte {
	stringFields := []struct {
		tag int
		val string
	}{
		{FieldMetaDatasetName, m.DatasetName},
		{FieldMetaSplitName, m.SplitName},
		{FieldMetaHostname, m.Hostname},
		{FieldMetaInstanceID, m.InstanceID},
	}

	// Make a safe estimate of the buffer size needed, not accurate.
	var bufSizeNeeded int
	for _, sf := range stringFields {
		bufSizeNeeded += len(sf.val) + 20
	}
	bufSizeNeeded += 1000 // generous enough for the numeric fields
	b := make([]byte, bufSizeNeeded)
	offset := 0

	for _, sf := range stringFields {
		if len(sf.val) > 0 {
			offset += csproto.EncodeTag(b[offset:], sf.tag, csproto.WireTypeLengthDelimited)
			offset += csproto.EncodeVarint(b[offset:], uint64(len(sf.val)))
			offset += copy(b[offset:], sf.val)
		}
	}
	if m.ShardIndex > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldMetaShardIndex, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(b[offset:], uint64(m.ShardIndex))
	}
	if m.ShardCount > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldMetaShardCount, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(b[offset:], uint64(m.ShardCount))
	}
	if m.RowCount > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldMetaRowCount, csproto.WireTypeVarint)
		offset += csproto.EncodeVarint(b[offset:], uint64(m.RowCount))
	}
	if m.TimestampNano > 0 {
		offset += csproto.EncodeTag(b[offset:], FieldMetaTimestampNano, csproto.WireTypeFixed64)
		binary.LittleEndian.PutUint64(b[offset:offset+8], m.TimestampNano)
		offset += 8
	}

	return b[:offset]
}

func (m *Meta) Unmarshal(data []byte) error {
	d := csproto.NewDecoder(data)
	d.SetMode(csproto.DecoderModeFast)
	for d.More() {
		tag, wireType, err := d.DecodeTag()
		if err != nil {
			return err
		}
		switch tag {
		case FieldMetaDatasetName:
			m.DatasetName, err = getString(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaSplitName:
			m.SplitName, err = getString(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaShardIndex:
			m.ShardIndex, err = getUInt32(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaShardCount:
			m.ShardCount, err = getUInt32(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaRowCount:
			m.RowCount, err = getInt64(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaHostname:
			m.Hostname, err = getString(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaInstanceID:
			m.InstanceID, err = getString(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldMetaTimestampNano:
			m.TimestampNano, err = getFixed64(d, tag, wireType)
			if err != nil {
				return err
			}
		default:
			if _, err := d.Skip(tag, wireType); err != nil {
				return err
			}
		}
	}
	return nil
}
