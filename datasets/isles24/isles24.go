// Package isles24 builds the ISLES'24 stroke lesion segmentation dataset
// (Zenodo record 17652035 v7): 149 acute stroke subjects with CT imaging at
// admission and follow-up MRI with expert lesion masks.
//
// One table row per subject, flattening the acute session (ses-01) and the
// follow-up session (ses-02) to match the prediction task: acute imaging in,
// follow-up lesion out. The layout is not standard BIDS, subjects live under
// raw_data/, derivatives/ and phenotype/.
package isles24

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/bids"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

const Kind = "isles24"

// ArchiveMD5 is the checksum of the train.7z archive published on Zenodo.
const ArchiveMD5 = "4959a5dd2438d53e3c86d6858484e781"

func init() {
	datasets.Register(builder{})
}

var schema = table.Schema{
	{Name: "subject_id", Kind: table.String},
	{Name: "ncct", Kind: table.Image},
	{Name: "cta", Kind: table.Image},
	{Name: "ctp", Kind: table.Image},
	{Name: "tmax", Kind: table.Image},
	{Name: "mtt", Kind: table.Image},
	{Name: "cbf", Kind: table.Image},
	{Name: "cbv", Kind: table.Image},
	{Name: "dwi", Kind: table.Image},
	{Name: "adc", Kind: table.Image},
	{Name: "lesion_mask", Kind: table.Image},
	{Name: "lvo_mask", Kind: table.Image},
	{Name: "cow_segmentation", Kind: table.Image},
	{Name: "age", Kind: table.Float},
	{Name: "sex", Kind: table.String},
	{Name: "nihss_admission", Kind: table.Float},
	{Name: "mrs_admission", Kind: table.Float},
	{Name: "mrs_3month", Kind: table.Float},
}

type builder struct{}

func (builder) Info() datasets.Info {
	return datasets.Info{
		Kind:    Kind,
		Title:   "ISLES'24 Stroke Lesion Segmentation",
		Source:  "Zenodo record 17652035",
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
	rawRoot := filepath.Join(root, "raw_data")
	derivRoot := filepath.Join(root, "derivatives")
	phenoRoot := filepath.Join(root, "phenotype")

	if info, err := os.Stat(rawRoot); err != nil || !info.IsDir() {
		return nil, errors.Errorf("raw_data directory not found at %s", rawRoot)
	}

	subjects, err := bids.SubjectDirs(rawRoot)
	if err != nil {
		return nil, err
	}

	tbl := table.New(schema)
	for _, subDir := range subjects {
		sub := filepath.Base(subDir)

		// Acute session, raw CT directly under ses-01/.
		ses01Raw := filepath.Join(subDir, "ses-01")
		ncct, err := singleImage(ses01Raw, "*_ncct.nii.gz")
		if err != nil {
			return nil, err
		}
		ctaRaw, err := bids.FindSingleNIfTI(ses01Raw, "*_cta.nii.gz")
		if err != nil {
			return nil, err
		}
		ctpRaw, err := bids.FindSingleNIfTI(ses01Raw, "*_ctp.nii.gz")
		if err != nil {
			return nil, err
		}

		// Derivatives registered to NCCT space.
		ses01Deriv := filepath.Join(derivRoot, sub, "ses-01")
		perfDir := filepath.Join(ses01Deriv, "perfusion-maps")
		tmax, err := singleImage(perfDir, "*_space-ncct_tmax.nii.gz")
		if err != nil {
			return nil, err
		}
		mtt, err := singleImage(perfDir, "*_space-ncct_mtt.nii.gz")
		if err != nil {
			return nil, err
		}
		cbf, err := singleImage(perfDir, "*_space-ncct_cbf.nii.gz")
		if err != nil {
			return nil, err
		}
		cbv, err := singleImage(perfDir, "*_space-ncct_cbv.nii.gz")
		if err != nil {
			return nil, err
		}
		ctaDeriv, err := bids.FindSingleNIfTI(ses01Deriv, "*_space-ncct_cta.nii.gz")
		if err != nil {
			return nil, err
		}
		ctpDeriv, err := bids.FindSingleNIfTI(ses01Deriv, "*_space-ncct_ctp.nii.gz")
		if err != nil {
			return nil, err
		}
		lvoMask, err := singleImage(ses01Deriv, "*_space-ncct_lvo-msk.nii.gz")
		if err != nil {
			return nil, err
		}
		cowSeg, err := singleImage(ses01Deriv, "*_space-ncct_cow-msk.nii.gz")
		if err != nil {
			return nil, err
		}

		// Follow-up MRI lives only in derivatives.
		ses02Deriv := filepath.Join(derivRoot, sub, "ses-02")
		dwi, err := singleImage(ses02Deriv, "*_space-ncct_dwi.nii.gz")
		if err != nil {
			return nil, err
		}
		adc, err := singleImage(ses02Deriv, "*_space-ncct_adc.nii.gz")
		if err != nil {
			return nil, err
		}
		lesionMask, err := singleImage(ses02Deriv, "*_space-ncct_lesion-msk.nii.gz")
		if err != nil {
			return nil, err
		}

		meta := loadPhenotype(phenoRoot, sub)

		tbl.Append(table.Row{
			"subject_id": table.StringValue(sub),
			// Prefer the raw acute CT, fall back to the registered derivative.
			"ncct":             ncct,
			"cta":              imageOrFallback(ctaRaw, ctaDeriv),
			"ctp":              imageOrFallback(ctpRaw, ctpDeriv),
			"tmax":             tmax,
			"mtt":              mtt,
			"cbf":              cbf,
			"cbv":              cbv,
			"dwi":              dwi,
			"adc":              adc,
			"lesion_mask":      lesionMask,
			"lvo_mask":         lvoMask,
			"cow_segmentation": cowSeg,
			"age":              meta.age,
			"sex":              meta.sex,
			"nihss_admission":  meta.nihss,
			"mrs_admission":    meta.mrsAdmission,
			"mrs_3month":       meta.mrs3Month,
		})
	}

	l.WithField("rows", tbl.NumRows()).Info("Built table")
	return tbl, nil
}

func singleImage(dir, pattern string) (table.Value, error) {
	path, err := bids.FindSingleNIfTI(dir, pattern)
	if err != nil {
		return table.Value{}, err
	}
	if path == "" {
		return table.Null(table.Image), nil
	}
	return table.ImageValue(path), nil
}

func imageOrFallback(raw, derived string) table.Value {
	switch {
	case raw != "":
		return table.ImageValue(raw)
	case derived != "":
		return table.ImageValue(derived)
	default:
		return table.Null(table.Image)
	}
}

type phenotype struct {
	age          table.Value
	sex          table.Value
	nihss        table.Value
	mrsAdmission table.Value
	mrs3Month    table.Value
}

// Clinical metadata is spread over per-subject XLSX files:
// ses-01/*_demographic_baseline.xlsx and ses-02/*_outcome.xlsx. Column names
// must match exactly, the first non-null value per field wins.
var phenotypeColumns = map[string]string{
	"Age":                "age",
	"Sex":                "sex",
	"NIHSS at admission": "nihss_admission",
	"mRS at admission":   "mrs_admission",
	"mRS 3 months":       "mrs_3month",
}

func loadPhenotype(phenoRoot, sub string) phenotype {
	meta := phenotype{
		age:          table.Null(table.Float),
		sex:          table.Null(table.String),
		nihss:        table.Null(table.Float),
		mrsAdmission: table.Null(table.Float),
		mrs3Month:    table.Null(table.Float),
	}

	for _, ses := range []string{"ses-01", "ses-02"} {
		files, err := filepath.Glob(filepath.Join(phenoRoot, sub, ses, "*.xlsx"))
		if err != nil {
			continue
		}
		sort.Strings(files)
		for _, path := range files {
			if err := readPhenotypeFile(path, &meta); err != nil {
				// Unreadable metadata downgrades the row, it does not fail
				// the build. The phenotype validation check reports it.
				logrus.WithField("dataset", Kind).WithError(err).
					Debugf("Skipping phenotype file %s", filepath.Base(path))
			}
		}
	}
	return meta
}

func readPhenotypeFile(path string, meta *phenotype) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errors.New("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return nil // header only, nothing to read
	}
	header, data := rows[0], rows[1]

	for i, col := range header {
		field, ok := phenotypeColumns[strings.TrimSpace(col)]
		if !ok || i >= len(data) {
			continue
		}
		cell := strings.TrimSpace(data[i])
		if cell == "" {
			continue
		}
		switch field {
		case "sex":
			if meta.sex.IsNull() {
				meta.sex = table.StringValue(cell)
			}
		case "age":
			setFloat(&meta.age, cell)
		case "nihss_admission":
			setFloat(&meta.nihss, cell)
		case "mrs_admission":
			setFloat(&meta.mrsAdmission, cell)
		case "mrs_3month":
			setFloat(&meta.mrs3Month, cell)
		}
	}
	return nil
}

func setFloat(v *table.Value, cell string) {
	if !v.IsNull() {
		return
	}
	f, err := strconv.ParseFloat(cell, 32)
	if err != nil {
		return
	}
	*v = table.FloatValue(float32(f))
}

// Census from the Zenodo v7 record. CTP and the perfusion maps are missing
// for some subjects and the vessel masks only exist for about two thirds,
// hence the 10% default tolerance.
func (builder) Rules() validation.Rules {
	return validation.Rules{
		Name: Kind,
		ExpectedCounts: map[string]int{
			"subjects":    149,
			"ncct":        149,
			"cta":         149,
			"tmax":        140,
			"dwi":         149,
			"lesion_mask": 149,
			"lvo_mask":    100,
		},
		RequiredFiles: []string{"clinical_data-description.xlsx"},
		RequiredDirs:  []string{"raw_data", "derivatives", "phenotype"},
		SubjectsDir:   "raw_data",
		PathPatterns: map[string]string{
			"ncct":        "raw_data/sub-*/ses-01/*_ncct.nii.gz",
			"cta":         "raw_data/sub-*/ses-01/*_cta.nii.gz",
			"tmax":        "derivatives/sub-*/ses-01/perfusion-maps/*_space-ncct_tmax.nii.gz",
			"dwi":         "derivatives/sub-*/ses-02/*_space-ncct_dwi.nii.gz",
			"lesion_mask": "derivatives/sub-*/ses-02/*_space-ncct_lesion-msk.nii.gz",
			"lvo_mask":    "derivatives/sub-*/ses-01/*_space-ncct_lvo-msk.nii.gz",
		},
		CustomChecks:     []func(root string) validation.Check{checkPhenotypeReadable},
		DefaultTolerance: 0.1,
		ArchiveFile:      "train.7z",
		ArchiveMD5:       ArchiveMD5,
	}
}

// checkPhenotypeReadable spot-checks one phenotype XLSX. A missing phenotype
// tree is reported as skipped rather than failed, because imaging-only use is
// still possible.
func checkPhenotypeReadable(root string) validation.Check {
	phenoDir := filepath.Join(root, "phenotype")
	if info, err := os.Stat(phenoDir); err != nil || !info.IsDir() {
		return validation.Check{
			Name:     "phenotype_readable",
			Expected: "phenotype/ exists",
			Actual:   "directory not found",
			Passed:   true,
			Skipped:  true,
			Details:  "phenotype/ directory not found, check for incomplete extraction",
		}
	}

	var sample string
	_ = filepath.WalkDir(phenoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".xlsx") {
			sample = path
			return filepath.SkipAll
		}
		return nil
	})
	if sample == "" {
		return validation.Check{
			Name:     "phenotype_readable",
			Expected: "XLSX files in phenotype/",
			Actual:   "none found",
			Passed:   true,
			Skipped:  true,
			Details:  "no XLSX files found in phenotype/, metadata will be unavailable",
		}
	}

	f, err := excelize.OpenFile(sample)
	if err != nil {
		return validation.Check{
			Name:     "phenotype_readable",
			Expected: "readable XLSX",
			Actual:   "unreadable",
			Details:  err.Error(),
		}
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return validation.Check{
			Name:     "phenotype_readable",
			Expected: "readable XLSX",
			Actual:   "unreadable",
			Details:  "no sheets in " + filepath.Base(sample),
		}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return validation.Check{
			Name:     "phenotype_readable",
			Expected: "readable XLSX",
			Actual:   "unreadable",
			Details:  err.Error(),
		}
	}
	return validation.Check{
		Name:     "phenotype_readable",
		Expected: "readable XLSX",
		Actual:   strconv.Itoa(len(rows)) + " rows",
		Passed:   true,
		Details:  "sample: " + filepath.Base(sample),
	}
}

func (builder) TableChecks(tbl *table.Table) []validation.Check {
	return []validation.Check{
		validation.CheckSchema(tbl, schema.Names()),
		validation.CheckRowCount(tbl, 149),
		validation.CheckUniqueValues(tbl, "subject_id", 149, "unique_subjects"),
		validation.CheckNonNullCount(tbl, "ncct", 149),
		validation.CheckNonNullCount(tbl, "dwi", 149),
		validation.CheckNonNullCount(tbl, "lesion_mask", 149),
	}
}
