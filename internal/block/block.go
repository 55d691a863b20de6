// Package block implements the Block Manager: pinning,
// locking and exchanging fixed-size pages of an externally supplied
// relation. The relation here is a modernc.org/sqlite WAL-mode table,
// standing in for the host heap file a real database would supply. A hashicorp/golang-lru cache
// of pinned, decoded pages sits in front of it so hot pages avoid a
// sqlite round trip.
package block

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// PageSize is the fixed size of every block in the relation.
const PageSize = 8192

// Blockno addresses a single fixed-size page.
type Blockno uint64

// InvalidBlockno marks "no next page" the way a linked list's tail does.
const InvalidBlockno Blockno = 0

// Page is a pinned, decoded view of one block's bytes plus its
// bookkeeping header (next_blockno, max offset).
type Page struct {
	Blockno     Blockno
	Data        [PageSize]byte
	NextBlockno Blockno
	dirty       bool
}

// MaxOffsetNumber returns how many fixed-size items of itemSize currently
// fit in the page's body (the header occupies the first headerSize bytes).
func (p *Page) MaxOffsetNumber(headerSize, itemSize int) int {
	if itemSize <= 0 {
		return 0
	}
	return (PageSize - headerSize) / itemSize
}

// ItemOffset computes the byte offset of the n'th (0-based) fixed-size
// item after a header of headerSize bytes.
func (p *Page) ItemOffset(headerSize, itemSize, n int) int {
	return headerSize + n*itemSize
}

// Buffer is a pinned handle on a page. A pin keeps the page resident in
// the cache; a lock additionally guards concurrent access to its bytes.
type Buffer struct {
	mgr  *Manager
	page *Page
	mu   *sync.RWMutex
}

func (b *Buffer) Page() *Page { return b.page }

// MarkDirty flags the buffer's page for write-back on Unpin.
func (b *Buffer) MarkDirty() {
	b.page.dirty = true
}

// LockShared/LockExclusive acquire the per-buffer RWMutex. A pin without
// a lock is legal and only guarantees the buffer exists in the pool — callers must still lock before touching Data.
func (b *Buffer) LockShared()    { b.mu.RLock() }
func (b *Buffer) UnlockShared()  { b.mu.RUnlock() }
func (b *Buffer) LockExclusive() { b.mu.Lock() }
func (b *Buffer) UnlockExclusive() {
	b.mu.Unlock()
}

// Unpin releases the buffer, flushing it to the backing relation if dirty.
func (b *Buffer) Unpin() error {
	return b.mgr.unpin(b)
}

// Manager is the Block Manager: get/pin/lock/unlock/dirty over pages of a
// sqlite-backed relation, with an LRU cache of decoded pages in front of it.
type Manager struct {
	db       *sql.DB
	relation string

	mu     sync.Mutex // guards nextBlockno and the locks map
	locks  map[Blockno]*sync.RWMutex
	cache  *lru.Cache[Blockno, *Page]
	nextBn Blockno
	closed bool
}

// Config controls the Manager's backing file and in-process cache size.
type Config struct {
	// Path is the sqlite database file. Empty means an ephemeral
	// in-memory relation (used by tests and scratch indexes).
	Path string
	// CacheSize is the number of decoded pages kept pinned in the LRU
	// cache before eviction; evicted dirty pages are flushed first.
	CacheSize int
}

// Open creates or attaches to the block relation, applying the WAL
// pragmas concurrent multi-process access needs.
func Open(cfg Config) (*Manager, error) {
	dsn := ":memory:"
	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errs.Storage(errs.CodeStorageIO, "failed to create block relation directory", err).
					WithDetail("path", cfg.Path)
			}
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "failed to open block relation", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-65536",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errs.Storage(errs.CodeStorageIO, "failed to apply pragma", err).WithDetail("pragma", pragma)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS blocks (
		blockno INTEGER PRIMARY KEY,
		next_blockno INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errs.Storage(errs.CodeStorageIO, "failed to create blocks table", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	m := &Manager{db: db, locks: make(map[Blockno]*sync.RWMutex)}

	cache, err := lru.NewWithEvict(cacheSize, func(bn Blockno, p *Page) {
		if p.dirty {
			_ = m.flush(p)
		}
	})
	if err != nil {
		db.Close()
		return nil, errs.Storage(errs.CodeStorageBufferPoolExhausted, "failed to create page cache", err)
	}
	m.cache = cache

	var maxBn sql.NullInt64
	if err := db.QueryRow("SELECT MAX(blockno) FROM blocks").Scan(&maxBn); err != nil {
		db.Close()
		return nil, errs.Storage(errs.CodeStorageIO, "failed to read relation high-water mark", err)
	}
	if maxBn.Valid {
		m.nextBn = Blockno(maxBn.Int64) + 1
	} else {
		m.nextBn = 1
	}

	return m, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, bn := range m.cache.Keys() {
		if p, ok := m.cache.Peek(bn); ok && p.dirty {
			_ = m.flush(p)
		}
	}
	return m.db.Close()
}

// AllocatePage assigns a fresh blockno and returns a pinned, zeroed buffer
// for it. Callers must MarkDirty + Unpin to persist it.
func (m *Manager) AllocatePage() (*Buffer, error) {
	m.mu.Lock()
	bn := m.nextBn
	m.nextBn++
	m.mu.Unlock()

	page := &Page{Blockno: bn, dirty: true}
	if _, err := m.db.Exec("INSERT INTO blocks (blockno, next_blockno, data) VALUES (?, 0, ?)",
		int64(bn), page.Data[:]); err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "failed to allocate page", err).
			WithDetail("blockno", fmt.Sprint(bn))
	}

	m.mu.Lock()
	m.cache.Add(bn, page)
	buf := m.pinExisting(bn, page)
	m.mu.Unlock()
	return buf, nil
}

// GetBuffer pins and returns the page at bn, reading through to the
// relation on a cache miss.
func (m *Manager) GetBuffer(bn Blockno) (*Buffer, error) {
	m.mu.Lock()
	if page, ok := m.cache.Get(bn); ok {
		buf := m.pinExisting(bn, page)
		m.mu.Unlock()
		return buf, nil
	}
	m.mu.Unlock()

	page, err := m.loadPage(bn)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache.Add(bn, page)
	buf := m.pinExisting(bn, page)
	m.mu.Unlock()
	return buf, nil
}

// GetBufferExchange atomically releases prev (if non-nil) and pins bn,
// avoiding the lock-order-inversion deadlock a naive unpin-then-pin could
// cause against a concurrent evictor.
func (m *Manager) GetBufferExchange(bn Blockno, prev *Buffer) (*Buffer, error) {
	next, err := m.GetBuffer(bn)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if err := prev.Unpin(); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (m *Manager) pinExisting(bn Blockno, page *Page) *Buffer {
	lock, ok := m.locks[bn]
	if !ok {
		lock = &sync.RWMutex{}
		m.locks[bn] = lock
	}
	return &Buffer{mgr: m, page: page, mu: lock}
}

func (m *Manager) loadPage(bn Blockno) (*Page, error) {
	var nextBn int64
	var data []byte
	err := m.db.QueryRow("SELECT next_blockno, data FROM blocks WHERE blockno = ?", int64(bn)).Scan(&nextBn, &data)
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageBadMagic, "block not found in relation", err).
			WithDetail("blockno", fmt.Sprint(bn))
	}
	page := &Page{Blockno: bn, NextBlockno: Blockno(nextBn)}
	copy(page.Data[:], data)
	return page, nil
}

func (m *Manager) unpin(b *Buffer) error {
	if b.page.dirty {
		if err := m.flush(b.page); err != nil {
			return err
		}
		b.page.dirty = false
	}
	return nil
}

func (m *Manager) flush(p *Page) error {
	_, err := m.db.Exec("UPDATE blocks SET next_blockno = ?, data = ? WHERE blockno = ?",
		int64(p.NextBlockno), p.Data[:], int64(p.Blockno))
	if err != nil {
		return errs.Storage(errs.CodeStorageIO, "failed to flush page", err).
			WithDetail("blockno", fmt.Sprint(p.Blockno))
	}
	return nil
}
