// Package arc builds the Aphasia Recovery Cohort dataset (OpenNeuro
// ds004884): 230 chronic stroke patients, 902 longitudinal sessions with
// structural, functional and diffusion MRI plus expert-drawn lesion masks.
// One table row per session.
package arc

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

const Kind = "arc"

func init() {
	datasets.Register(builder{})
}

// T2w acquisition codes, exact match only. An unknown code is passed through
// unmapped so new acquisitions do not break the build.
var acquisitionNames = map[string]string{
	"spc3p2": "space_2x",
	"spc3":   "space_no_accel",
	"tse3":   "turbo_spin_echo",
}

var acqRe = regexp.MustCompile(`acq-([a-z0-9]+)`)

var schema = table.Schema{
	{Name: "subject_id", Kind: table.String},
	{Name: "session_id", Kind: table.String},
	{Name: "t1w", Kind: table.ImageList},
	{Name: "t2w", Kind: table.ImageList},
	{Name: "t2w_acquisition", Kind: table.String},
	{Name: "flair", Kind: table.ImageList},
	{Name: "bold_naming40", Kind: table.ImageList},
	{Name: "bold_rest", Kind: table.ImageList},
	{Name: "dwi", Kind: table.ImageList},
	{Name: "dwi_bvals", Kind: table.StringList},
	{Name: "dwi_bvecs", Kind: table.StringList},
	{Name: "sbref", Kind: table.ImageList},
	{Name: "lesion", Kind: table.Image},
	{Name: "age_at_stroke", Kind: table.Float},
	{Name: "sex", Kind: table.String},
	{Name: "race", Kind: table.String},
	{Name: "wab_aq", Kind: table.Float},
	{Name: "wab_days", Kind: table.Float},
	{Name: "wab_type", Kind: table.String},
}

type builder struct{}

func (builder) Info() datasets.Info {
	return datasets.Info{
		Kind:    Kind,
		Title:   "Aphasia Recovery Cohort",
		Source:  "OpenNeuro ds004884",
		RowUnit: "session",
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
	var missingDir, noSessions int
	for _, p := range participants {
		sub := p.String("participant_id")
		subDir := filepath.Join(root, sub)
		if info, err := os.Stat(subDir); err != nil || !info.IsDir() {
			missingDir++
			continue
		}
		sessions, err := bids.SessionDirs(subDir)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			noSessions++
			continue
		}
		for _, sesDir := range sessions {
			row, err := sessionRow(root, p, sub, sesDir)
			if err != nil {
				return nil, err
			}
			tbl.Append(row)
		}
	}

	l = l.WithFields(logrus.Fields{
		"rows":     tbl.NumRows(),
		"subjects": len(participants) - missingDir - noSessions,
	})
	if missingDir+noSessions > 0 {
		l.WithFields(logrus.Fields{
			"missing_dir": missingDir,
			"no_sessions": noSessions,
		}).Warn("Built table with subjects skipped")
	} else {
		l.Info("Built table")
	}
	return tbl, nil
}

func sessionRow(root string, p bids.Participant, sub, sesDir string) (table.Row, error) {
	ses := filepath.Base(sesDir)
	anatDir := filepath.Join(sesDir, "anat")
	funcDir := filepath.Join(sesDir, "func")
	dwiDir := filepath.Join(sesDir, "dwi")

	t1w, err := bids.FindAllNIfTIs(anatDir, "*_T1w.nii.gz")
	if err != nil {
		return nil, err
	}
	t2w, err := bids.FindAllNIfTIs(anatDir, "*_T2w.nii.gz")
	if err != nil {
		return nil, err
	}
	flair, err := bids.FindAllNIfTIs(anatDir, "*_FLAIR.nii.gz")
	if err != nil {
		return nil, err
	}

	// All T2w runs in one session use the same sequence, so the first run
	// determines the acquisition type.
	acq := table.Null(table.String)
	if len(t2w) > 0 {
		if name, ok := acquisitionType(t2w[0]); ok {
			acq = table.StringValue(name)
		}
	}

	bold, err := bids.FindAllNIfTIs(funcDir, "*_bold.nii.gz")
	if err != nil {
		return nil, err
	}
	var naming40, rest, unexpected []string
	for _, path := range bold {
		switch {
		case strings.Contains(path, "task-naming40"):
			naming40 = append(naming40, path)
		case strings.Contains(path, "task-rest"):
			rest = append(rest, path)
		default:
			unexpected = append(unexpected, filepath.Base(path))
		}
	}
	// Only the naming40 and rest tasks exist in this dataset. Anything else
	// would be silently dropped, so fail loudly instead.
	if len(unexpected) > 0 {
		if len(unexpected) > 3 {
			unexpected = unexpected[:3]
		}
		return nil, errors.Errorf("unexpected BOLD task for %s/%s: %s",
			sub, ses, strings.Join(unexpected, ", "))
	}

	dwi, err := bids.FindAllNIfTIs(dwiDir, "*_dwi.nii.gz")
	if err != nil {
		return nil, err
	}
	bvals := make([]string, 0, len(dwi))
	bvecs := make([]string, 0, len(dwi))
	for _, path := range dwi {
		bval, err := readGradientFile(path, ".bval")
		if err != nil {
			return nil, err
		}
		bvec, err := readGradientFile(path, ".bvec")
		if err != nil {
			return nil, err
		}
		bvals = append(bvals, bval)
		bvecs = append(bvecs, bvec)
	}
	sbref, err := bids.FindAllNIfTIs(dwiDir, "*_sbref.nii.gz")
	if err != nil {
		return nil, err
	}

	lesionDir := filepath.Join(root, "derivatives", "lesion_masks", sub, ses, "anat")
	lesionPath, err := bids.FindSingleNIfTI(lesionDir, "*_desc-lesion_mask.nii.gz")
	if err != nil {
		return nil, err
	}
	lesion := table.Null(table.Image)
	if lesionPath != "" {
		lesion = table.ImageValue(lesionPath)
	}

	return table.Row{
		"subject_id":      table.StringValue(sub),
		"session_id":      table.StringValue(ses),
		"t1w":             table.ImageListValue(t1w),
		"t2w":             table.ImageListValue(t2w),
		"t2w_acquisition": acq,
		"flair":           table.ImageListValue(flair),
		"bold_naming40":   table.ImageListValue(naming40),
		"bold_rest":       table.ImageListValue(rest),
		"dwi":             table.ImageListValue(dwi),
		"dwi_bvals":       table.StringListValue(bvals),
		"dwi_bvecs":       table.StringListValue(bvecs),
		"sbref":           table.ImageListValue(sbref),
		"lesion":          lesion,
		"age_at_stroke":   floatOrNull(p, "age_at_stroke"),
		"sex":             stringOrNull(p, "sex"),
		"race":            stringOrNull(p, "race"),
		"wab_aq":          floatOrNull(p, "wab_aq"),
		"wab_days":        floatOrNull(p, "wab_days"),
		"wab_type":        stringOrNull(p, "wab_type"),
	}, nil
}

// acquisitionType extracts the acq-<label> entity from a BIDS filename and
// maps known codes to readable names.
func acquisitionType(path string) (string, bool) {
	m := acqRe.FindStringSubmatch(strings.ToLower(path))
	if m == nil {
		return "", false
	}
	if name, ok := acquisitionNames[m[1]]; ok {
		return name, true
	}
	return m[1], true
}

// readGradientFile reads the .bval or .bvec companion of a DWI NIfTI. Every
// DWI run in this dataset has both gradient files, a missing one indicates a
// corrupt download.
func readGradientFile(niftiPath, extension string) (string, error) {
	base := strings.TrimSuffix(niftiPath, ".gz")
	base = strings.TrimSuffix(base, ".nii")
	gradientPath := base + extension

	data, err := os.ReadFile(gradientPath)
	if err != nil {
		return "", errors.Wrap(err, "missing gradient file")
	}
	return strings.TrimSpace(string(data)), nil
}

func stringOrNull(p bids.Participant, col string) table.Value {
	s := p.String(col)
	if s == "" {
		return table.Null(table.String)
	}
	return table.StringValue(s)
}

func floatOrNull(p bids.Participant, col string) table.Value {
	f, ok := p.Float(col)
	if !ok {
		if s := p.String(col); s != "" {
			logrus.WithField("dataset", Kind).
				Warnf("Invalid numeric value in %s: %q", col, s)
		}
		return table.Null(table.Float)
	}
	return table.FloatValue(f)
}

// The census counts SESSIONS containing each modality, not raw files, which
// is why t1w is 444 here but 447 files exist (three sessions have two runs).
func (builder) Rules() validation.Rules {
	return validation.Rules{
		Name: Kind,
		ExpectedCounts: map[string]int{
			"subjects": 230,
			"sessions": 902,
			"t1w":      444,
			"t2w":      440,
			"flair":    233,
			"bold":     850,
			"dwi":      613,
			"sbref":    88,
		},
		RequiredFiles: []string{
			"dataset_description.json",
			"participants.tsv",
			"participants.json",
		},
		ModalityPatterns: map[string]string{
			"t1w":   "*_T1w.nii.gz",
			"t2w":   "*_T2w.nii.gz",
			"flair": "*_FLAIR.nii.gz",
			"bold":  "*_bold.nii.gz",
			"dwi":   "*_dwi.nii.gz",
			"sbref": "*_sbref.nii.gz",
		},
		// Lesion masks live in derivatives/, outside the sub-*/ses-* tree
		// the modality counter searches, so they get a custom check.
		CustomChecks: []func(root string) validation.Check{checkLesionMasks},
	}
}

func checkLesionMasks(root string) validation.Check {
	lesionDir := filepath.Join(root, "derivatives", "lesion_masks")
	if info, err := os.Stat(lesionDir); err != nil || !info.IsDir() {
		return validation.Check{
			Name:     "lesion_count",
			Expected: ">= 228 (target: 228)",
			Actual:   "0",
			Details:  "derivatives/lesion_masks/ directory not found",
		}
	}
	masks, err := bids.FindAllNIfTIs(lesionDir, "*_desc-lesion_mask.nii.gz")
	if err != nil {
		return validation.Check{
			Name:     "lesion_count",
			Expected: ">= 228 (target: 228)",
			Actual:   "scan error: " + err.Error(),
		}
	}
	return validation.CheckCount("lesion_count", len(masks), 228, 0)
}

func (builder) TableChecks(tbl *table.Table) []validation.Check {
	checks := []validation.Check{
		validation.CheckSchema(tbl, schema.Names()),
		validation.CheckRowCount(tbl, 902),
		validation.CheckUniqueValues(tbl, "subject_id", 230, "unique_subjects"),
		validation.CheckNonNullCount(tbl, "lesion", 228),
	}
	for _, mc := range []struct {
		column   string
		sessions int
		files    int
	}{
		{"t1w", 444, 447},
		{"t2w", 440, 441},
		{"flair", 233, 235},
		{"bold_naming40", 750, 894},
		{"bold_rest", 498, 508},
		{"dwi", 613, 2089},
		{"sbref", 88, 322},
	} {
		checks = append(checks,
			validation.CheckListSessions(tbl, mc.column, mc.sessions),
			validation.CheckTotalListItems(tbl, mc.column, mc.files),
		)
	}
	checks = append(checks,
		validation.CheckListAlignment(tbl, []string{"dwi", "dwi_bvals", "dwi_bvecs"}))
	return checks
}
