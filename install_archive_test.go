package monit

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func makeTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     e.mode,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

var monitArchive = []tarEntry{
	{name: "monit-5.15/", typeflag: tar.TypeDir, mode: 0o755},
	{name: "monit-5.15/bin/", typeflag: tar.TypeDir, mode: 0o755},
	{name: "monit-5.15/bin/monit", body: "#!/bin/sh\necho This is Monit version 5.15\n", mode: 0o755},
	{name: "monit-5.15/conf/monitrc", body: "set daemon 30\n", mode: 0o600},
	{name: "monit-5.15/man/man1/monit.1", body: ".TH MONIT 1\n"},
}

func staticFetch(data []byte, calls *int32) FetchFunc {
	return func(context.Context, string) (io.ReadCloser, error) {
		atomic.AddInt32(calls, 1)
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func archiveStrategy(root string) Strategy {
	dir := filepath.Join(root, "monit-5.15")
	return Strategy{
		Provider:   ProviderBinaries,
		Kind:       KindArchive,
		Version:    "5.15",
		URL:        "https://example.invalid/monit-5.15-linux-x64.tar.gz",
		InstallDir: dir,
		Binary:     filepath.Join(dir, "bin", "monit"),
	}
}

func TestArchiveInstall(t *testing.T) {
	root := t.TempDir()
	var calls int32
	s := archiveStrategy(root)
	inst := NewInstaller(s,
		WithFetch(staticFetch(makeTarGz(t, monitArchive), &calls)),
		WithInstallerLogger(discardLogger()),
	)

	require.NoError(t, inst.Install(context.Background()))
	info, err := os.Stat(s.Binary)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	dir, err := os.Stat(s.InstallDir)
	require.NoError(t, err)
	require.True(t, dir.IsDir())
	require.Equal(t, os.FileMode(0o755), dir.Mode().Perm(), "install dir must be traversable by other users")

	data, err := os.ReadFile(filepath.Join(s.InstallDir, "conf", "monitrc"))
	require.NoError(t, err)
	require.Equal(t, "set daemon 30\n", string(data))
	require.FileExists(t, filepath.Join(s.InstallDir, "man", "man1", "monit.1"))

	// Only the install dir is left behind, no staging directories.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Installed binary short-circuits the download.
	require.NoError(t, inst.Install(context.Background()))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, inst.Uninstall(context.Background()))
	require.NoDirExists(t, s.InstallDir)
}

func TestArchiveInstallMissingBinary(t *testing.T) {
	root := t.TempDir()
	var calls int32
	s := archiveStrategy(root)
	inst := NewInstaller(s,
		WithFetch(staticFetch(makeTarGz(t, []tarEntry{{name: "monit-5.15/README", body: "hi"}}), &calls)),
		WithInstallerLogger(discardLogger()),
	)

	err := inst.Install(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bin/monit")
	require.NoDirExists(t, s.InstallDir)
}

func TestArchiveInstallFetchError(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("connection reset")
	inst := NewInstaller(archiveStrategy(root),
		WithFetch(func(context.Context, string) (io.ReadCloser, error) { return nil, boom }),
		WithInstallerLogger(discardLogger()),
	)

	require.ErrorIs(t, inst.Install(context.Background()), boom)
}

func TestExtractTarGzRejectsEscapes(t *testing.T) {
	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{"dot dot", []tarEntry{{name: "monit-5.15/../../evil", body: "x"}}},
		{"symlink out", []tarEntry{{name: "monit-5.15/bin/link", typeflag: tar.TypeSymlink, linkname: "../../../etc/passwd"}}},
		{"absolute symlink", []tarEntry{{name: "monit-5.15/bin/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			err := extractTarGz(bytes.NewReader(makeTarGz(t, tt.entries)), dest, 1)
			require.Error(t, err)
			require.Contains(t, err.Error(), "escapes destination")
		})
	}
}

func TestExtractTarGzSymlinkInside(t *testing.T) {
	dest := t.TempDir()
	entries := []tarEntry{
		{name: "monit-5.15/bin/monit", body: "bin", mode: 0o755},
		{name: "monit-5.15/monit", typeflag: tar.TypeSymlink, linkname: "bin/monit"},
	}
	require.NoError(t, extractTarGz(bytes.NewReader(makeTarGz(t, entries)), dest, 1))

	target, err := os.Readlink(filepath.Join(dest, "monit"))
	require.NoError(t, err)
	require.Equal(t, "bin/monit", target)
}

func TestExtractTarGzNotGzip(t *testing.T) {
	err := extractTarGz(bytes.NewReader([]byte("plain text")), t.TempDir(), 1)
	require.Error(t, err)
}

func TestHTTPFetch(t *testing.T) {
	payload := []byte("archive bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.tar.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fetch := NewHTTPFetch(srv.Client(), discardLogger())

	body, err := fetch(context.Background(), srv.URL+"/monit.tar.gz")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.Equal(t, payload, data)

	_, err = fetch(context.Background(), srv.URL+"/missing.tar.gz")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestHTTPFetchRetriesServerErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping download retry test in short mode")
	}

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := NewHTTPFetch(srv.Client(), discardLogger())(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
