package shard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	timeFormat = "20060102-150405.000000000" // but need to s/./-/
	dotIndex   = 15                          // position of the '.'
)

func Timestamp(ts time.Time) string {
	return strings.Replace(
		ts.UTC().Format(timeFormat),
		".", "-", 1)
}

func TimestampFromNano(tsNano uint64) string {
	ts := time.Unix(0, int64(tsNano))
	return Timestamp(ts)
}

// Name returns the blob name for one shard:
//
//	<dataset>__<split>-NNNNN-of-NNNNN__<timestamp>__<instance>.pb.gz
//
// index is zero-based. Names sort lexicographically by dataset, split and
// shard index.
func Name(dataset, split string, index, count int, ts time.Time, instanceID string) string {
	return fmt.Sprintf("%s__%s-%05d-of-%05d__%s__%s.pb.gz",
		dataset,
		split, index, count,
		Timestamp(ts),
		instanceID,
	)
}

// ManifestName returns the blob name of the dataset-info manifest uploaded
// after all shards.
func ManifestName(dataset, split string) string {
	return fmt.Sprintf("%s__%s__dataset_info.json", dataset, split)
}

func ParseName(name string) (NameInfo, error) {
	var ni, empty NameInfo
	basename, ext, found := strings.Cut(name, ".")
	if !found {
		return empty, fmt.Errorf("invalid name: no dot: %s", name)
	}
	if ext != "pb.gz" {
		return empty, fmt.Errorf("unexpected extension: %s", name)
	}
	ni.FullName = name
	ni.Extension = ext
	p := strings.Split(basename, "__")
	if len(p) < 4 {
		return empty, fmt.Errorf("not enough name parts: %s", name)
	}
	ni.DatasetName = p[0]
	ni.TimestampString = p[2]
	ni.InstanceID = p[3]

	// Split the "<split>-NNNNN-of-NNNNN" part
	shardPart := p[1]
	ofIdx := strings.LastIndex(shardPart, "-of-")
	if ofIdx < 0 {
		return empty, fmt.Errorf("invalid shard part: %s in %s", shardPart, name)
	}
	count, err := strconv.Atoi(shardPart[ofIdx+4:])
	if err != nil {
		return empty, fmt.Errorf("invalid shard count: %s in %s", shardPart, name)
	}
	rest := shardPart[:ofIdx]
	dashIdx := strings.LastIndex(rest, "-")
	if dashIdx < 0 {
		return empty, fmt.Errorf("invalid shard part: %s in %s", shardPart, name)
	}
	index, err := strconv.Atoi(rest[dashIdx+1:])
	if err != nil {
		return empty, fmt.Errorf("invalid shard index: %s in %s", shardPart, name)
	}
	ni.SplitName = rest[:dashIdx]
	ni.ShardIndex = index
	ni.ShardCount = count
	if ni.SplitName == "" {
		return empty, fmt.Errorf("empty split name: %s", name)
	}

	tss := ni.TimestampString
	if len(tss) != len(timeFormat) || tss[dotIndex] != '-' {
		return empty, fmt.Errorf("invalid timestamp format: %s in %s", tss, name)
	}
	tss = tss[:dotIndex] + "." + tss[dotIndex+1:] // replace second '-' with '.' for parsing
	ts, err := time.Parse(timeFormat, tss)        // returns time in UTC
	if err != nil {
		return empty, fmt.Errorf("timestamp parse error: %s", err)
	}
	ni.Timestamp = ts
	return ni, nil
}

type NameInfo struct {
	FullName        string
	Extension       string // "pb.gz"
	DatasetName     string
	SplitName       string
	ShardIndex      int // zero-based
	ShardCount      int
	InstanceID      string
	TimestampString string
	Timestamp       time.Time
}
