package block

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	mgr, err := Open(Config{})
	require.NoError(t, err)
	defer mgr.Close()

	buf, err := mgr.AllocatePage()
	require.NoError(t, err)
	bn := buf.Page().Blockno

	buf.LockExclusive()
	copy(buf.Page().Data[:5], []byte("hello"))
	buf.MarkDirty()
	buf.UnlockExclusive()
	require.NoError(t, buf.Unpin())

	buf2, err := mgr.GetBuffer(bn)
	require.NoError(t, err)
	buf2.LockShared()
	defer buf2.UnlockShared()
	assert.Equal(t, "hello", string(buf2.Page().Data[:5]))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	mgr, err := Open(Config{Path: path})
	require.NoError(t, err)

	buf, err := mgr.AllocatePage()
	require.NoError(t, err)
	bn := buf.Page().Blockno
	buf.LockExclusive()
	copy(buf.Page().Data[:3], []byte("abc"))
	buf.MarkDirty()
	buf.UnlockExclusive()
	require.NoError(t, buf.Unpin())
	require.NoError(t, mgr.Close())

	reopened, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	buf2, err := reopened.GetBuffer(bn)
	require.NoError(t, err)
	buf2.LockShared()
	defer buf2.UnlockShared()
	assert.Equal(t, "abc", string(buf2.Page().Data[:3]))
}

func TestGetBufferExchangeReleasesPrevious(t *testing.T) {
	mgr, err := Open(Config{})
	require.NoError(t, err)
	defer mgr.Close()

	buf1, err := mgr.AllocatePage()
	require.NoError(t, err)
	buf2Target, err := mgr.AllocatePage()
	require.NoError(t, err)

	exchanged, err := mgr.GetBufferExchange(buf2Target.Page().Blockno, buf1)
	require.NoError(t, err)
	assert.Equal(t, buf2Target.Page().Blockno, exchanged.Page().Blockno)
}

func TestMaxOffsetNumber(t *testing.T) {
	p := &Page{}
	assert.Equal(t, (PageSize-16)/32, p.MaxOffsetNumber(16, 32))
	assert.Equal(t, 0, p.MaxOffsetNumber(16, 0))
}
