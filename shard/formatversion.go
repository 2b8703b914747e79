package shard

const (
	// CurrentFormatVersion is the current shard format we write.
	// Version 1 is the initial format: meta plus per-column cell streams
	// with explicit null flags and aligned image ref/payload pairs.
	CurrentFormatVersion uint32 = 1

	// CompatFormatVersion is the oldest shard version we can read.
	CompatFormatVersion uint32 = 1

	// WriteCompatFormatVersion is the oldest shard version that shards
	// written by this program version are compatible with.
	WriteCompatFormatVersion uint32 = 1
)
