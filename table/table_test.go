package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	{Name: "subject", Kind: String},
	{Name: "age", Kind: Float},
	{Name: "t1w", Kind: Image},
	{Name: "bvals", Kind: StringList},
}

func testRow(subject string) Row {
	return Row{
		"subject": StringValue(subject),
		"age":     FloatValue(42),
		"t1w":     ImageValue("/data/" + subject + "_T1w.nii.gz"),
		"bvals":   StringListValue([]string{"0 1000"}),
	}
}

func TestCheckColumns(t *testing.T) {
	tbl := New(testSchema)
	tbl.Append(testRow("sub-001"))
	assert.NoError(t, tbl.CheckColumns())

	t.Run("missing column", func(t *testing.T) {
		tbl := New(testSchema)
		row := testRow("sub-001")
		delete(row, "age")
		tbl.Append(row)
		assert.ErrorContains(t, tbl.CheckColumns(), `missing column "age"`)
	})

	t.Run("wrong kind", func(t *testing.T) {
		tbl := New(testSchema)
		row := testRow("sub-001")
		row["age"] = StringValue("42")
		tbl.Append(row)
		assert.ErrorContains(t, tbl.CheckColumns(), "kind string, schema says float")
	})

	t.Run("extra column", func(t *testing.T) {
		tbl := New(testSchema)
		row := testRow("sub-001")
		row["stray"] = StringValue("x")
		tbl.Append(row)
		assert.ErrorContains(t, tbl.CheckColumns(), "not in schema: stray")
	})

	t.Run("null satisfies schema", func(t *testing.T) {
		tbl := New(testSchema)
		row := testRow("sub-001")
		row["t1w"] = Null(Image)
		tbl.Append(row)
		assert.NoError(t, tbl.CheckColumns())
	})
}

func TestShard(t *testing.T) {
	tbl := New(testSchema)
	for i := 0; i < 7; i++ {
		tbl.Append(testRow("sub-00" + string(rune('1'+i))))
	}

	t.Run("one per row", func(t *testing.T) {
		var total int
		for i := 0; i < 7; i++ {
			s, err := tbl.Shard(7, i)
			require.NoError(t, err)
			assert.Equal(t, 1, s.NumRows())
			total += s.NumRows()
		}
		assert.Equal(t, 7, total)
	})

	t.Run("uneven split", func(t *testing.T) {
		// 7 rows over 3 shards: 3, 2, 2
		sizes := []int{3, 2, 2}
		var seen []string
		for i := 0; i < 3; i++ {
			s, err := tbl.Shard(3, i)
			require.NoError(t, err)
			assert.Equal(t, sizes[i], s.NumRows())
			for _, row := range s.Rows {
				seen = append(seen, row["subject"].Str())
			}
		}
		// Shards are contiguous and cover every row exactly once
		require.Len(t, seen, 7)
		for i, row := range tbl.Rows {
			assert.Equal(t, row["subject"].Str(), seen[i])
		}
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := tbl.Shard(0, 0)
		assert.Error(t, err)
		_, err = tbl.Shard(3, 3)
		assert.Error(t, err)
		_, err = tbl.Shard(3, -1)
		assert.Error(t, err)
	})
}

func TestMaterialize(t *testing.T) {
	tbl := New(testSchema)
	tbl.Append(testRow("sub-001"))

	fresh := tbl.Materialize()
	require.Equal(t, 1, fresh.NumRows())

	// Mutating the copy must not leak into the original
	fresh.Rows[0]["subject"] = StringValue("changed")
	fresh.Rows[0]["bvals"].Strings()[0] = "changed"
	assert.Equal(t, "sub-001", tbl.Rows[0]["subject"].Str())
	assert.Equal(t, "0 1000", tbl.Rows[0]["bvals"].Strings()[0])
}

func TestEmbedImages(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "sub-001_T1w.nii.gz")
	require.NoError(t, os.WriteFile(single, []byte("t1w-bytes"), 0o644))
	runA := filepath.Join(dir, "run-1_bold.nii.gz")
	runB := filepath.Join(dir, "run-2_bold.nii.gz")
	require.NoError(t, os.WriteFile(runA, []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(runB, []byte("bbbb"), 0o644))

	schema := Schema{
		{Name: "t1w", Kind: Image},
		{Name: "bold", Kind: ImageList},
		{Name: "flair", Kind: Image},
	}
	tbl := New(schema)
	tbl.Append(Row{
		"t1w":   ImageValue(single),
		"bold":  ImageListValue([]string{runA, runB}),
		"flair": Null(Image),
	})

	require.NoError(t, tbl.EmbedImages())

	imgs := tbl.Rows[0]["t1w"].Images()
	require.Len(t, imgs, 1)
	assert.Equal(t, "sub-001_T1w.nii.gz", imgs[0].Ref)
	assert.Equal(t, []byte("t1w-bytes"), imgs[0].Data)

	bold := tbl.Rows[0]["bold"].Images()
	require.Len(t, bold, 2)
	assert.Equal(t, "run-1_bold.nii.gz", bold[0].Ref)
	assert.Equal(t, []byte("bbbb"), bold[1].Data)

	assert.Equal(t, int64(9+3+4), tbl.PayloadBytes())

	t.Run("missing file", func(t *testing.T) {
		tbl := New(Schema{{Name: "t1w", Kind: Image}})
		tbl.Append(Row{"t1w": ImageValue(filepath.Join(dir, "nope.nii.gz"))})
		assert.ErrorContains(t, tbl.EmbedImages(), "embed row 0")
	})
}

func TestValueNumItems(t *testing.T) {
	assert.Equal(t, 1, StringValue("x").NumItems())
	assert.Equal(t, 0, Null(StringList).NumItems())
	assert.Equal(t, 3, StringListValue([]string{"a", "b", "c"}).NumItems())
	assert.Equal(t, 2, ImageListValue([]string{"a", "b"}).NumItems())
	assert.Equal(t, 0, StringListValue(nil).NumItems())
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{String, Float, Image, StringList, ImageList} {
		got, err := KindFromString(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := KindFromString("bogus")
	assert.Error(t, err)
}
