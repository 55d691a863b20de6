package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/config"
)

func TestCombineLayerSizes(t *testing.T) {
	fg := []int64{64 << 10, 1 << 20}
	bg := []int64{256 << 10, 64 << 10}
	assert.Equal(t, []int64{64 << 10, 256 << 10, 1 << 20}, combineLayerSizes(fg, bg))
	assert.Empty(t, combineLayerSizes(nil, nil))
}

func TestParseSegmentIDs(t *testing.T) {
	ids, err := parseSegmentIDs([]string{"8c5a40aa-93b1-4c2f-9d2e-0f3b6b3f7f01"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "8c5a40aa-93b1-4c2f-9d2e-0f3b6b3f7f01", ids[0].String())

	_, err = parseSegmentIDs([]string{"not-a-uuid"})
	require.Error(t, err)
}

func TestFileHeapSourceIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n  b  \n"), 0o644))

	src, err := loadHeapSource(path)
	require.NoError(t, err)
	assert.True(t, src.Contains("a"))
	assert.True(t, src.Contains("b"))
	assert.False(t, src.Contains(""))

	keys, err := src.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestBuildSchemaReportSortsFields(t *testing.T) {
	opts := config.NewIndexOptions("id")
	opts.TextFields = map[string]config.FieldOptions{"zed": {}, "alpha": {Fast: true}}
	opts.NumericFields = map[string]config.FieldOptions{"mid": {}}

	report := buildSchemaReport(opts)
	require.Len(t, report.Fields, 3)
	assert.Equal(t, "alpha", report.Fields[0].Name)
	assert.Equal(t, "mid", report.Fields[1].Name)
	assert.Equal(t, "zed", report.Fields[2].Name)
}

func TestInitWritesLoadableTemplate(t *testing.T) {
	old := indexPath
	indexPath = t.TempDir()
	defer func() { indexPath = old }()

	c := newInitCmd()
	c.SetOut(io.Discard)
	require.NoError(t, runInit(c, false))

	opts, err := config.Load(filepath.Join(indexPath, "options.yaml"))
	require.NoError(t, err, "the shipped template must pass validation")
	assert.Equal(t, "doc_id", opts.KeyField)

	require.Error(t, runInit(c, false), "refuses to clobber without --force")
	require.NoError(t, runInit(c, true))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "8c5a40aa", shortID("8c5a40aa-93b1-4c2f-9d2e-0f3b6b3f7f01"))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "10", formatDocs(10, 0))
	assert.Equal(t, "10 (3 deleted)", formatDocs(10, 3))
	assert.Equal(t, "5 / -", formatXids(5, 0))
	assert.Equal(t, "5 / 9", formatXids(5, 9))
}
