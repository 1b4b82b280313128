package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/service"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

func testEPUB(t *testing.T, title string) []byte {
	t.Helper()

	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>` + title + `</dc:title>
  </metadata>
</package>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"mimetype": "application/epub+zip",
		"META-INF/container.xml": `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf"/></rootfiles>
</container>`,
		"content.opf": opf,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type importerFixture struct {
	dir      string
	store    *store.Store
	importer *Importer
	owner    string
}

func setupImporter(t *testing.T) *importerFixture {
	t.Helper()

	testStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	identity, err := relay.NewLocalIdentity()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	library := service.NewLibraryService(testStore, identity, logger)

	dir := filepath.Join(t.TempDir(), "drop")
	imp, err := New(dir, library, logger)
	require.NoError(t, err)
	t.Cleanup(func() { imp.Stop() })

	return &importerFixture{dir: dir, store: testStore, importer: imp, owner: identity.PublicKey()}
}

func TestImportFile(t *testing.T) {
	f := setupImporter(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "book.epub")
	require.NoError(t, os.WriteFile(path, testEPUB(t, "Dropped Book"), 0o644))

	f.importer.importFile(ctx, path)

	books, err := f.store.ListBooks(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dropped Book", books[0].Title)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "imported files leave the drop folder")
}

func TestImportFile_FailureParksFile(t *testing.T) {
	f := setupImporter(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "broken.epub")
	require.NoError(t, os.WriteFile(path, []byte("not an epub"), 0o644))

	f.importer.importFile(ctx, path)

	books, err := f.store.ListBooks(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, books)

	parked := filepath.Join(f.dir, failedDirName, "broken.epub")
	_, err = os.Stat(parked)
	assert.NoError(t, err, "unimportable files are parked for inspection")
}

func TestImportFile_DuplicateRemoved(t *testing.T) {
	f := setupImporter(t)
	ctx := context.Background()
	data := testEPUB(t, "Dropped Twice")

	first := filepath.Join(f.dir, "first.epub")
	require.NoError(t, os.WriteFile(first, data, 0o644))
	f.importer.importFile(ctx, first)

	second := filepath.Join(f.dir, "second.epub")
	require.NoError(t, os.WriteFile(second, data, 0o644))
	f.importer.importFile(ctx, second)

	books, err := f.store.ListBooks(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, books, 1)

	_, err = os.Stat(second)
	assert.True(t, os.IsNotExist(err), "the duplicate copy is cleaned up, not parked")
	_, err = os.Stat(filepath.Join(f.dir, failedDirName))
	assert.True(t, os.IsNotExist(err))
}

func TestScanExisting(t *testing.T) {
	f := setupImporter(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "waiting.epub"), testEPUB(t, "Waiting Book"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("ignore me"), 0o644))

	f.importer.scanExisting(ctx)

	books, err := f.store.ListBooks(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Waiting Book", books[0].Title)

	_, err = os.Stat(filepath.Join(f.dir, "notes.txt"))
	assert.NoError(t, err, "non-epub files are left alone")
}

func TestIsEpub(t *testing.T) {
	assert.True(t, isEpub("book.epub"))
	assert.True(t, isEpub("BOOK.EPUB"))
	assert.False(t, isEpub("book.mobi"))
	assert.False(t, isEpub("epub"))
}
