// Package aomic builds the AOMIC-PIOP1 dataset (OpenNeuro ds002785): 216
// healthy subjects with a single-session multimodal protocol. One table row
// per subject.
package aomic

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

const Kind = "aomic-piop1"

func init() {
	datasets.Register(builder{})
}

var schema = table.Schema{
	{Name: "subject_id", Kind: table.String},
	{Name: "t1w", Kind: table.Image},
	{Name: "dwi", Kind: table.ImageList},
	{Name: "bold", Kind: table.ImageList},
	{Name: "age", Kind: table.Float},
	{Name: "sex", Kind: table.String},
	{Name: "handedness", Kind: table.String},
}

type builder struct{}

func (builder) Info() datasets.Info {
	return datasets.Info{
		Kind:    Kind,
		Title:   "AOMIC-PIOP1",
		Source:  "OpenNeuro ds002785",
		RowUnit: "subject",
	}
}

func (builder) Schema() table.Schema {
	return schema
}

func (b builder) Build(root string) (*table.Table, error) {
	l := logrus.WithField("dataset", Kind)

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	participants, err := bids.ReadParticipants(filepath.Join(root, "participants.tsv"))
	if err != nil {
		return nil, err
	}

	tbl := table.New(schema)
	for _, p := range participants {
		sub := p.String("participant_id")
		subDir := filepath.Join(root, sub)
		if info, err := os.Stat(subDir); err != nil || !info.IsDir() {
			l.WithField("subject", sub).Warn("Subject directory not found, skipping")
			continue
		}

		// AOMIC has no ses-* level, every subject scanned once.
		t1wPath, err := bids.FindSingleNIfTI(filepath.Join(subDir, "anat"), sub+"_T1w.nii.gz")
		if err != nil {
			return nil, err
		}
		dwi, err := bids.FindAllNIfTIs(filepath.Join(subDir, "dwi"), sub+"_dwi.nii.gz")
		if err != nil {
			return nil, err
		}
		bold, err := bids.FindAllNIfTIs(filepath.Join(subDir, "func"), sub+"_*_bold.nii.gz")
		if err != nil {
			return nil, err
		}

		t1w := table.Null(table.Image)
		if t1wPath != "" {
			t1w = table.ImageValue(t1wPath)
		}
		age := table.Null(table.Float)
		if v, ok := p.Float("age"); ok {
			age = table.FloatValue(v)
		}
		sex := table.Null(table.String)
		if s := p.String("sex"); s != "" {
			sex = table.StringValue(s)
		}
		handedness := table.Null(table.String)
		if s := p.String("handedness"); s != "" {
			handedness = table.StringValue(s)
		}

		tbl.Append(table.Row{
			"subject_id": table.StringValue(sub),
			"t1w":        t1w,
			"dwi":        table.ImageListValue(dwi),
			"bold":       table.ImageListValue(bold),
			"age":        age,
			"sex":        sex,
			"handedness": handedness,
		})
	}

	l.WithField("rows", tbl.NumRows()).Info("Built table")
	return tbl, nil
}

// Census from the Scientific Data paper (Snoek et al., 2021), 216 subjects
// after quality control. Five subjects are missing DWI.
func (builder) Rules() validation.Rules {
	return validation.Rules{
		Name: Kind,
		ExpectedCounts: map[string]int{
			"subjects": 216,
			"t1w":      216,
			"dwi":      211,
			"bold":     216,
		},
		RequiredFiles: []string{
			"dataset_description.json",
			"participants.tsv",
			"participants.json",
		},
		ModalityPatterns: map[string]string{
			"t1w":  "*_T1w.nii.gz",
			"dwi":  "*_dwi.nii.gz",
			"bold": "*_bold.nii.gz",
		},
	}
}

func (builder) TableChecks(tbl *table.Table) []validation.Check {
	return []validation.Check{
		validation.CheckSchema(tbl, schema.Names()),
		validation.CheckRowCount(tbl, 216),
		validation.CheckUniqueValues(tbl, "subject_id", 216, "unique_subjects"),
		validation.CheckNonNullCount(tbl, "t1w", 216),
		validation.CheckListSessions(tbl, "dwi", 211),
		validation.CheckListSessions(tbl, "bold", 216),
	}
}
