// Package status serves the HTTP status page, Prometheus metrics and the
// healthz endpoint.
package status

import (
	"context"
	"sync"

	"github.com/PowerDNS/simpleblob"
	"github.com/pkg/errors"
)

// ProgressFunc reports uploaded and total shard counts for one push.
type ProgressFunc func() (done, total int64)

type info struct {
	mu       sync.Mutex
	datasets []datasetInfo
	st       simpleblob.Interface
}

type datasetInfo struct {
	name     string
	split    string
	progress ProgressFunc
}

// DatasetStatus is one row of the status page dataset table.
type DatasetStatus struct {
	Name       string
	Split      string
	ShardsDone int64
	ShardsGoal int64
}

var gi info

func (i *info) ListBlobs(ctx context.Context) (simpleblob.BlobList, error) {
	i.mu.Lock()
	st := i.st
	i.mu.Unlock()
	if st == nil {
		return nil, errors.New("no storage registered with status page")
	}
	return st.List(ctx, "")
}

func (i *info) DatasetStatus() (res []DatasetStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, d := range i.datasets {
		done, total := d.progress()
		res = append(res, DatasetStatus{
			Name:       d.name,
			Split:      d.split,
			ShardsDone: done,
			ShardsGoal: total,
		})
	}
	return res
}

// AddDataset registers an active upload with the status page.
func AddDataset(name, split string, progress ProgressFunc) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.datasets = append(gi.datasets, datasetInfo{
		name:     name,
		split:    split,
		progress: progress,
	})
}

func RemoveDataset(name string) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	var datasets []datasetInfo
	for _, d := range gi.datasets {
		if d.name == name {
			continue
		}
		datasets = append(datasets, d)
	}
	gi.datasets = datasets
}

func SetStorage(st simpleblob.Interface) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.st = st
}
