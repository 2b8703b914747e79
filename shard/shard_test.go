package shard

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

func testTable(t *testing.T) *table.Table {
	t.Helper()
	schema := table.Schema{
		{Name: "subject", Kind: table.String},
		{Name: "age", Kind: table.Float},
		{Name: "t1w", Kind: table.Image},
		{Name: "bold", Kind: table.ImageList},
		{Name: "bvals", Kind: table.StringList},
	}
	tbl := table.New(schema)
	tbl.Append(table.Row{
		"subject": table.StringValue("sub-001"),
		"age":     table.FloatValue(64.5),
		"t1w": table.ImageRefsValue(table.Image, []table.ImageRef{
			{Ref: "sub-001_T1w.nii.gz", Data: []byte("t1w-payload")},
		}),
		"bold": table.ImageRefsValue(table.ImageList, []table.ImageRef{
			{Ref: "run-1_bold.nii.gz", Data: []byte("b1")},
			{Ref: "run-2_bold.nii.gz", Data: []byte("b22")},
		}),
		"bvals": table.StringListValue([]string{"0 1000 2000", "0 1000"}),
	})
	tbl.Append(table.Row{
		"subject": table.StringValue(""), // empty non-null string
		"age":     table.FloatValue(0),   // zero non-null float
		"t1w":     table.Null(table.Image),
		"bold":    table.ImageRefsValue(table.ImageList, nil),
		"bvals":   table.Null(table.StringList),
	})
	return tbl
}

func testMeta() Meta {
	return Meta{
		DatasetName:   "arc",
		SplitName:     "train",
		ShardIndex:    3,
		ShardCount:    902,
		Hostname:      "host-1",
		InstanceID:    "publisher-1",
		TimestampNano: 1714657062123456789,
	}
}

func TestShard_roundtrip(t *testing.T) {
	tbl := testTable(t)
	s, err := FromTable(tbl, testMeta())
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Meta.RowCount)

	data, stat, err := DumpData(s)
	require.NoError(t, err)
	assert.Greater(t, int(stat.ProtobufSize), 0)
	assert.Greater(t, int(stat.CompressedSize), 0)

	loaded, err := LoadData(data)
	require.NoError(t, err)
	assert.Equal(t, CurrentFormatVersion, loaded.FormatVersion)
	assert.Equal(t, WriteCompatFormatVersion, loaded.CompatVersion)
	assert.Equal(t, testMeta().DatasetName, loaded.Meta.DatasetName)
	assert.Equal(t, uint32(3), loaded.Meta.ShardIndex)
	assert.Equal(t, uint32(902), loaded.Meta.ShardCount)
	assert.Equal(t, int64(2), loaded.Meta.RowCount)
	require.Len(t, loaded.Columns, 5)

	got, err := loaded.Table()
	require.NoError(t, err)
	require.NoError(t, got.CheckColumns())
	require.Equal(t, 2, got.NumRows())

	row := got.Rows[0]
	assert.Equal(t, "sub-001", row["subject"].Str())
	assert.InDelta(t, 64.5, row["age"].Float32(), 0.001)

	t1w := row["t1w"].Images()
	require.Len(t, t1w, 1)
	assert.Equal(t, "sub-001_T1w.nii.gz", t1w[0].Ref)
	assert.Equal(t, []byte("t1w-payload"), t1w[0].Data)

	bold := row["bold"].Images()
	require.Len(t, bold, 2)
	assert.Equal(t, "run-2_bold.nii.gz", bold[1].Ref)
	assert.Equal(t, []byte("b22"), bold[1].Data)

	assert.Equal(t, []string{"0 1000 2000", "0 1000"}, row["bvals"].Strings())

	row = got.Rows[1]
	assert.False(t, row["subject"].IsNull())
	assert.Equal(t, "", row["subject"].Str())
	assert.False(t, row["age"].IsNull())
	assert.Equal(t, float32(0), row["age"].Float32())
	assert.True(t, row["t1w"].IsNull())
	assert.False(t, row["bold"].IsNull())
	assert.Empty(t, row["bold"].Images())
	assert.True(t, row["bvals"].IsNull())
}

func TestDumpFile(t *testing.T) {
	tbl := testTable(t)
	s, err := FromTable(tbl, testMeta())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "shard.pb.gz")
	stat, err := DumpFile(s, path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int(stat.CompressedSize), len(data))

	loaded, err := LoadData(data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Meta.RowCount)
}

func TestFromTable_checksColumns(t *testing.T) {
	tbl := table.New(table.Schema{{Name: "subject", Kind: table.String}})
	tbl.Append(table.Row{})
	_, err := FromTable(tbl, testMeta())
	assert.ErrorContains(t, err, `missing column "subject"`)
}

func TestShard_Table_rowCountMismatch(t *testing.T) {
	tbl := testTable(t)
	s, err := FromTable(tbl, testMeta())
	require.NoError(t, err)
	s.Meta.RowCount = 3
	_, err = s.Table()
	assert.ErrorContains(t, err, "expected 3 rows")
}

func TestColumn_appendNext(t *testing.T) {
	col := NewColumn()
	col.SetName("age")
	col.SetKind(table.Float)
	col.Append(Cell{FloatBits: math.Float32bits(41.5), HasFloat: true})
	col.Append(Cell{Null: true})
	col.Append(Cell{}) // empty message, non-null default

	data := col.Marshal()
	loaded, err := NewColumnFromData(data)
	require.NoError(t, err)
	assert.Equal(t, "age", loaded.Name())
	assert.Equal(t, table.Float, loaded.Kind())

	cells, err := loaded.AsInefficientCellList()
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.True(t, cells[0].HasFloat)
	assert.Equal(t, float32(41.5), math.Float32frombits(cells[0].FloatBits))
	assert.True(t, cells[1].Null)
	assert.False(t, cells[2].Null)
	assert.False(t, cells[2].HasFloat)

	// The list drained the cursor
	_, err = loaded.Next()
	assert.Equal(t, io.EOF, err)
}

func TestColumn_cursor(t *testing.T) {
	col := NewColumn()
	col.SetName("subject")
	col.Append(Cell{Strings: []string{"sub-001"}})

	c, err := col.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-001"}, c.Strings)

	_, err = col.Next()
	assert.Equal(t, io.EOF, err)

	col.ResetCursor()
	c, err = col.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-001"}, c.Strings)
}

func TestValueFromCell_misaligned(t *testing.T) {
	_, err := valueFromCell(table.ImageList, Cell{
		ImageRefs: []string{"a", "b"},
		ImageData: [][]byte{[]byte("x")},
	})
	assert.ErrorContains(t, err, "1 image payloads for 2 refs")

	_, err = valueFromCell(table.Image, Cell{ImageRefs: []string{"a", "b"}})
	assert.ErrorContains(t, err, "2 refs")
}
