package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PowerDNS/simpleblob"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/shard"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

// ManifestVersion is the version of the dataset-info manifest format.
const ManifestVersion = 1

// Manifest is the dataset-info blob uploaded after all shards. It describes
// the schema and the shard list, so a consumer can fetch and decode the
// shards without listing the store.
type Manifest struct {
	Version     int             `json:"version"`
	DatasetName string          `json:"dataset_name"`
	SplitName   string          `json:"split_name"`
	CreatedAt   time.Time       `json:"created_at"`
	Schema      []ManifestField `json:"schema"`
	RowCount    int64           `json:"row_count"`
	Shards      []ShardInfo     `json:"shards"`
	Hostname    string          `json:"hostname,omitempty"`
	Instance    string          `json:"instance,omitempty"`
}

// ManifestField is one schema field, with the kind in its string form.
type ManifestField struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ShardInfo describes a single uploaded shard.
type ShardInfo struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
	Size int64  `json:"size"` // compressed size in bytes
}

// NewManifest creates a manifest without shard entries yet.
func NewManifest(dataset, split string, schema table.Schema, rowCount int64, ts time.Time) *Manifest {
	m := &Manifest{
		Version:     ManifestVersion,
		DatasetName: dataset,
		SplitName:   split,
		CreatedAt:   ts.UTC(),
		RowCount:    rowCount,
	}
	for _, f := range schema {
		m.Schema = append(m.Schema, ManifestField{Name: f.Name, Kind: f.Kind.String()})
	}
	return m
}

// pushManifest uploads the manifest with the same retry policy as shards.
func (u *Uploader) pushManifest(ctx context.Context, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	name := shard.ManifestName(m.DatasetName, m.SplitName)
	if err := u.store(ctx, name, data); err != nil {
		return err
	}
	u.l.WithField("blob", name).Info("Stored dataset manifest")
	return nil
}

// LoadManifest fetches and parses a dataset manifest from the store.
func LoadManifest(ctx context.Context, st simpleblob.Interface, dataset, split string) (*Manifest, error) {
	name := shard.ManifestName(dataset, split)
	data, err := st.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", name, err)
	}
	m := new(Manifest)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", name, err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest %s has unsupported version %d", name, m.Version)
	}
	return m, nil
}
