// Package uploader implements the memory-bounded shard-sequential upload
// loop: slice the table, materialize one shard, embed its image payloads,
// encode it to a temporary file, store it in the blob store, dispose of it,
// and only then move on to the next shard. After all shards it uploads a
// dataset-info manifest describing the full table.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/config"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/shard"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/status/healthtracker"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/utils"
)

var hostname string

func init() {
	h, err := os.Hostname()
	if err != nil {
		logrus.WithError(err).Warn("Could not determine hostname")
		return
	}
	hostname = h
}

// New creates an Uploader for one dataset.
func New(name string, st simpleblob.Interface, c config.Config, dc config.Dataset) (*Uploader, error) {
	u := &Uploader{
		name:  name,
		split: dc.SplitName(),
		st:    st,
		c:     c,
		l:     logrus.WithField("dataset", name),
	}
	if u.instanceID() == "" {
		return nil, fmt.Errorf("instance name could not be determined, please provide one with --instance")
	}
	u.storeHealth = healthtracker.New(
		healthtracker.Config{},
		fmt.Sprintf("store_%s", name),
		fmt.Sprintf("store a shard of dataset %s", name),
	)
	return u, nil
}

type Uploader struct {
	name        string
	split       string
	st          simpleblob.Interface
	c           config.Config
	l           logrus.FieldLogger
	storeHealth *healthtracker.HealthTracker

	// Progress counters for the status page
	shardsTotal atomic.Int64
	shardsDone  atomic.Int64
}

func (u *Uploader) instanceID() string {
	if u.c.Instance != "" {
		return u.c.Instance
	}
	return hostname
}

// Progress returns the number of shards uploaded so far and the total for
// the current push. Safe to call from other goroutines.
func (u *Uploader) Progress() (done, total int64) {
	return u.shardsDone.Load(), u.shardsTotal.Load()
}

// ShardCount returns the number of shards a table of the given size is
// uploaded as.
func (u *Uploader) ShardCount(rows int) int {
	perShard := u.c.Upload.ShardRows
	if perShard < 1 {
		perShard = config.DefaultShardRows
	}
	return (rows + perShard - 1) / perShard
}

// Push uploads the table shard by shard, then the manifest. Only one shard
// is ever embedded and encoded in memory at a time.
func (u *Uploader) Push(ctx context.Context, tbl *table.Table) error {
	if err := tbl.CheckColumns(); err != nil {
		return err
	}
	if tbl.NumRows() == 0 {
		return fmt.Errorf("dataset %s: table has no rows", u.name)
	}

	numShards := u.ShardCount(tbl.NumRows())
	ts := time.Now() // one timestamp groups all shards of this push
	u.shardsDone.Store(0)
	u.shardsTotal.Store(int64(numShards))

	u.l.WithFields(logrus.Fields{
		"rows":   tbl.NumRows(),
		"shards": numShards,
		"split":  u.split,
	}).Info("Starting push")

	manifest := NewManifest(u.name, u.split, tbl.Schema, int64(tbl.NumRows()), ts)
	manifest.Hostname = hostname
	manifest.Instance = u.instanceID()

	for i := 0; i < numShards; i++ {
		if utils.IsCanceled(ctx) {
			return context.Canceled
		}
		info, err := u.pushShard(ctx, tbl, numShards, i, ts)
		if err != nil {
			return err
		}
		manifest.Shards = append(manifest.Shards, info)
		u.shardsDone.Inc()
	}

	if err := u.pushManifest(ctx, manifest); err != nil {
		return err
	}
	u.l.WithField("shards", numShards).Info("Push complete")
	return nil
}

// pushShard handles one shard end to end. Locals going out of scope here is
// what releases the embedded payloads before the next shard starts.
func (u *Uploader) pushShard(ctx context.Context, tbl *table.Table, numShards, i int, ts time.Time) (ShardInfo, error) {
	var info ShardInfo
	l := u.l.WithField("shard", fmt.Sprintf("%d/%d", i+1, numShards))
	t0 := time.Now()

	slice, err := tbl.Shard(numShards, i)
	if err != nil {
		return info, err
	}
	// A fresh copy so the full table keeps no reference to the embedded
	// payloads below.
	fresh := slice.Materialize()
	if err := fresh.EmbedImages(); err != nil {
		return info, err
	}
	tEmbedded := time.Now()
	payloadSize := fresh.PayloadBytes()

	msg, err := shard.FromTable(fresh, shard.Meta{
		DatasetName:   u.name,
		SplitName:     u.split,
		ShardIndex:    uint32(i),
		ShardCount:    uint32(numShards),
		Hostname:      hostname,
		InstanceID:    u.instanceID(),
		TimestampNano: uint64(ts.UnixNano()),
	})
	if err != nil {
		return info, err
	}
	rows := int64(fresh.NumRows())
	fresh = nil

	name := shard.Name(u.name, u.split, i, numShards, ts, u.instanceID())
	tmpPath, err := u.dumpTemp(msg, name)
	if err != nil {
		return info, err
	}
	defer os.Remove(tmpPath)
	msg = nil
	tDumped := time.Now()

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return info, err
	}

	metricShardsGenerated.WithLabelValues(u.name).Inc()
	metricShardsLastTimestamp.WithLabelValues(u.name).Set(float64(ts.UnixNano()) / 1e9)
	metricShardsLastSize.WithLabelValues(u.name).Set(float64(len(data)))

	if err := u.store(ctx, name, data); err != nil {
		return info, err
	}
	tStored := time.Now()
	size := int64(len(data))
	data = nil //nolint:ineffassign // release before GC stats

	// The payloads of this shard are garbage now, collect them before the
	// next shard embeds its own.
	utils.GC()

	l.WithFields(logrus.Fields{
		"time_embed":   utils.TimeDiff(tEmbedded, t0),
		"time_dump":    utils.TimeDiff(tDumped, tEmbedded),
		"time_store":   utils.TimeDiff(tStored, tDumped),
		"time_total":   utils.TimeDiff(tStored, t0),
		"payload_size": datasize.ByteSize(payloadSize).HumanReadable(),
		"shard_size":   datasize.ByteSize(size).HumanReadable(),
		"shard_name":   name,
	}).Info("Stored shard")

	info = ShardInfo{Name: name, Rows: rows, Size: size}
	return info, nil
}

// dumpTemp encodes and compresses the shard into a temporary file and
// returns its path.
func (u *Uploader) dumpTemp(msg *shard.Shard, name string) (string, error) {
	dir := u.c.Upload.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmpPath := filepath.Join(dir, name+".tmp")
	stat, err := shard.DumpFile(msg, tmpPath)
	if err != nil {
		return "", fmt.Errorf("dump shard %s: %w", name, err)
	}
	u.l.WithFields(logrus.Fields{
		"protobuf_size":   stat.ProtobufSize.HumanReadable(),
		"compressed_size": stat.CompressedSize.HumanReadable(),
		"time_compress":   stat.TCompressed.Round(time.Millisecond),
	}).Debug("Dumped shard to temp file")
	return tmpPath, nil
}

// store uploads one blob with the configured retry policy.
func (u *Uploader) store(ctx context.Context, name string, data []byte) (err error) {
	rc := u.c.Upload.RetryCount
	if rc < 1 {
		rc = config.DefaultRetryCount
	}
	interval := u.c.Upload.RetryInterval
	if interval <= 0 {
		interval = config.DefaultRetryInterval
	}
	for i := 0; i < rc || u.c.Upload.RetryForever; i++ {
		metricStoreCalls.Inc()
		err = u.st.Store(ctx, name, data)
		if err != nil {
			u.l.WithError(err).WithField("blob", name).Warn("Store failed, retrying")
			metricStoreFailed.WithLabelValues(u.name).Inc()
			u.storeHealth.AddFailure(err)

			if err := utils.SleepContext(ctx, interval); err != nil {
				return err
			}
			continue
		}
		metricStoreBytes.Add(float64(len(data)))
		u.storeHealth.AddSuccess()
		break
	}
	if err != nil {
		u.l.WithError(err).WithField("blob", name).Warn("Store failed too many times, giving up")
		metricStoreFailedPermanently.WithLabelValues(u.name).Inc()
		return err
	}
	return nil
}
