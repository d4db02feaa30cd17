package vfs

import (
	"archive/zip"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
	_ "modernc.org/sqlite"
)

// writeZip creates an archive with the given members. Members listed in
// deflated are compressed; the rest are stored.
func writeZip(t *testing.T, path string, members map[string][]byte, deflated map[string]bool) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range members {
		method := zip.Store
		if deflated[name] {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestFileReader_ReadExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(10), r.Size())
	assert.Equal(t, SectorSize, r.SectorSize())
	assert.Equal(t, 0, r.DeviceCharacteristics())

	got, err := ReadExact(r, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(got))

	_, err = ReadExact(r, 8, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShortRead))
	ae, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, 2, ae.Details["got"])
}

func TestOpenFile_NotFound(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.db"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	tests := []struct {
		level   LockLevel
		wantErr bool
	}{
		{LockNone, false},
		{LockShared, false},
		{LockReserved, true},
		{LockPending, true},
		{LockExclusive, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			err := r.Lock(tt.level)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrWriteNotSupported))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, r.Unlock(tt.level))
		})
	}
}

func TestArchiveMember(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "test.arag")
	writeZip(t, archive, map[string][]byte{
		"corpus.db":     []byte("stored payload bytes"),
		"content/a.txt": []byte("compressed content compressed content"),
		"content_list":  []byte("a.txt\n"),
	}, map[string]bool{"content/a.txt": true})

	t.Run("stored member reads in place", func(t *testing.T) {
		m, err := OpenArchiveMember(archive, "corpus.db")
		require.NoError(t, err)
		defer m.Close()

		assert.Equal(t, "corpus.db", m.Name())
		assert.Equal(t, int64(len("stored payload bytes")), m.Size())

		got, err := ReadExact(m, 7, 7)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))

		_, err = ReadExact(m, m.Size()-2, 5)
		assert.True(t, errors.Is(err, errors.ErrShortRead))

		assert.True(t, errors.Is(m.Lock(LockExclusive), errors.ErrWriteNotSupported))
	})

	t.Run("compressed member rejected", func(t *testing.T) {
		_, err := OpenArchiveMember(archive, "content/a.txt")
		assert.True(t, errors.Is(err, errors.ErrUnsupportedCompression))
	})

	t.Run("missing member", func(t *testing.T) {
		_, err := OpenArchiveMember(archive, "index.json")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestRegister_QueriesStoreInsideArchive(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corpus.db")

	plain, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = plain.Exec(`CREATE TABLE chunks (id INTEGER PRIMARY KEY, content TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = plain.Exec(`INSERT INTO chunks (content) VALUES ('alpha'), ('beta')`)
	require.NoError(t, err)
	require.NoError(t, plain.Close())

	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	archive := filepath.Join(dir, "test.arag")
	writeZip(t, archive, map[string][]byte{"corpus.db": data}, nil)

	m, err := OpenArchiveMember(archive, "corpus.db")
	require.NoError(t, err)
	defer m.Close()

	reg, err := Register("corpus.db", m)
	require.NoError(t, err)
	defer reg.Close()

	conn, err := sql.Open("sqlite", reg.DSN())
	require.NoError(t, err)
	defer conn.Close()

	var count int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count))
	assert.Equal(t, 2, count)

	var content string
	require.NoError(t, conn.QueryRow(`SELECT content FROM chunks WHERE id = 2`).Scan(&content))
	assert.Equal(t, "beta", content)

	_, err = conn.Exec(`INSERT INTO chunks (content) VALUES ('gamma')`)
	assert.Error(t, err, "writes through the archive adapter must fail")
}

// truncatedReader reports the full size of its file but can only deliver
// the first limit bytes.
type truncatedReader struct {
	*FileReader
	limit int64
}

func (r *truncatedReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.limit {
		return 0, io.EOF
	}
	if avail := r.limit - off; int64(len(p)) > avail {
		n, _ := r.FileReader.ReadAt(p[:avail], off)
		return n, io.EOF
	}
	return r.FileReader.ReadAt(p, off)
}

func TestBridgeFile_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))
	fr, err := OpenFile(path)
	require.NoError(t, err)
	defer fr.Close()

	t.Run("short at end of store", func(t *testing.T) {
		f, err := (&singleFileFS{name: "data.bin", rd: fr}).Open("data.bin")
		require.NoError(t, err)
		_, err = f.(io.Seeker).Seek(6, io.SeekStart)
		require.NoError(t, err)
		buf := make([]byte, 8)
		n, err := f.Read(buf)
		assert.NoError(t, err)
		assert.Equal(t, "6789", string(buf[:n]))

		_, err = f.Read(buf)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("data missing before size", func(t *testing.T) {
		short := &truncatedReader{FileReader: fr, limit: 4}
		f, err := (&singleFileFS{name: "data.bin", rd: short}).Open("data.bin")
		require.NoError(t, err)
		buf := make([]byte, 8)
		n, err := f.Read(buf)
		assert.Equal(t, 4, n)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestRegister_TruncatedStoreFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corpus.db")

	plain, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = plain.Exec(`CREATE TABLE chunks (id INTEGER PRIMARY KEY, content TEXT NOT NULL)`)
	require.NoError(t, err)
	body := strings.Repeat("x", 200)
	for range 200 {
		_, err = plain.Exec(`INSERT INTO chunks (content) VALUES (?)`, body)
		require.NoError(t, err)
	}
	require.NoError(t, plain.Close())

	fr, err := OpenFile(dbPath)
	require.NoError(t, err)
	defer fr.Close()
	require.Greater(t, fr.Size(), int64(3*SectorSize))

	// The last page is missing but Size still claims it.
	short := &truncatedReader{FileReader: fr, limit: fr.Size() - SectorSize}
	reg, err := Register("corpus.db", short)
	require.NoError(t, err)
	defer reg.Close()

	conn, err := sql.Open("sqlite", reg.DSN())
	require.NoError(t, err)
	defer conn.Close()

	var count int
	err = conn.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count)
	assert.Error(t, err, "a store shorter than its reported size must not be read as valid")
}
