package shard

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
)

// LoadData loads shard file contents that are gzipped protobufs
func LoadData(data []byte) (*Shard, error) {
	// Uncompress
	dataBuffer := bytes.NewBuffer(data)
	g, err := gzip.NewReader(dataBuffer)
	if err != nil {
		return nil, err
	}
	pbData, err := io.ReadAll(g)
	if err != nil {
		return nil, err
	}
	if err := g.Close(); err != nil {
		return nil, err
	}

	// Load protobuf
	msg := new(Shard)
	if err := msg.Unmarshal(pbData); err != nil {
		return nil, err
	}

	return msg, nil
}

// DumpData returns a compressed shard.
func DumpData(msg *Shard) ([]byte, DumpDataStats, error) {
	var stat DumpDataStats
	out := bytes.NewBuffer(make([]byte, 0, datasize.MB))
	if err := dump(msg, out, &stat); err != nil {
		return nil, stat, err
	}
	compressedData := out.Bytes()
	stat.CompressedSize = datasize.ByteSize(len(compressedData))
	return compressedData, stat, nil
}

// DumpFile writes a compressed shard to a file. The uploader stages each
// shard on disk so the encoded form never has to live in memory next to the
// embedded table.
func DumpFile(msg *Shard, path string) (DumpDataStats, error) {
	var stat DumpDataStats
	f, err := os.Create(path)
	if err != nil {
		return stat, err
	}
	if err := dump(msg, f, &stat); err != nil {
		f.Close()
		return stat, err
	}
	if err := f.Close(); err != nil {
		return stat, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return stat, err
	}
	stat.CompressedSize = datasize.ByteSize(info.Size())
	return stat, nil
}

func dump(msg *Shard, w io.Writer, stat *DumpDataStats) error {
	t0 := time.Now()

	// Streaming compression
	gw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}

	// Marshal and write to gzip writer. The marshalling itself takes almost
	// no time, since all the column data is already marshaled.
	pbSize, err := msg.WriteTo(gw)
	if err != nil {
		return err
	}
	stat.ProtobufSize = datasize.ByteSize(pbSize)

	if err = gw.Close(); err != nil {
		return err
	}
	stat.TCompressed = time.Since(t0)
	return nil
}

type DumpDataStats struct {
	TCompressed    time.Duration     // time it took to marshal (near 0) and compress
	ProtobufSize   datasize.ByteSize // uncompressed protobuf size
	CompressedSize datasize.ByteSize // compressed size on disk or in the store
}
