package ufed

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"testing"

	"github.com/deploymenttheory/go-backup-mapper/internal/android/abtest"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abBytes(t *testing.T, files map[string]string, opts abtest.Options) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, name := range []string{"apps/com.x/_manifest", "apps/com.x/f/notes.txt", "shared/0/DCIM/a.jpg"} {
		body, ok := files[name]
		if !ok {
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var ab bytes.Buffer
	require.NoError(t, abtest.Encode(&ab, tarBuf.Bytes(), opts))
	return ab.Bytes()
}

func writeZip(t *testing.T, fs afero.Fs, path string, entries []struct{ name, body string }) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func extraction(t *testing.T, fs afero.Fs, opts abtest.Options) {
	ab := abBytes(t, map[string]string{
		"apps/com.x/_manifest":   "1\ncom.x\n1\n30\n",
		"apps/com.x/f/notes.txt": "notes",
		"shared/0/DCIM/a.jpg":    "from-ab",
	}, opts)
	writeZip(t, fs, "/case/2024-05-01_10-00-00/extraction.zip", []struct{ name, body string }{
		{"backup/backup.ab", string(ab)},
		{"backup/sdcard/DCIM/a.jpg", "from-zip-backup"},
		{"backup/sdcard/Music/", ""},
		{"sdcard/DCIM/a.jpg", "from-zip-sdcard"},
		{"sdcard/Download/x.pdf", "pdf"},
		{"sdcard/", ""},
	})
}

func TestFindZipNested(t *testing.T) {
	fs := afero.NewMemMapFs()
	extraction(t, fs, abtest.Options{})
	require.NoError(t, afero.WriteFile(fs, "/case/readme.txt", []byte("x"), 0o644))

	loc, ok := FindZip(fs, "/case")
	require.True(t, ok)
	assert.Equal(t, "/case/2024-05-01_10-00-00/extraction.zip", loc.ZipPath)
	assert.Equal(t, "backup/backup.ab", loc.ABEntry())

	_, ok = FindZip(fs, "/case/readme.txt")
	assert.False(t, ok)
}

func TestDecodeDeduplicatesSharedStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	extraction(t, fs, abtest.Options{Compress: true})
	require.NoError(t, afero.WriteFile(fs, "/case/2024-05-01_10-00-00/device.ufd",
		[]byte("[General]\nExtractionType=Backup\n\n[DeviceInfo]\nVendor=Samsung\nModel=SM-G991B\nOS=13\n"), 0o644))

	dec := NewDecoder("/case", backup.DecodeOptions{Fs: fs})
	require.True(t, dec.Detect())

	c, err := dec.Decode()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, backup.KindUFED, c.Kind())
	assert.Equal(t, "Samsung SM-G991B", c.Device().Name)
	assert.Equal(t, "Android 13", c.Device().OSVersion)
	assert.True(t, c.Device().Zipped)

	var photos []*backup.Entry
	byPath := map[string]*backup.Entry{}
	for _, e := range c.Entries() {
		byPath[e.FullDomainPath()] = e
		if e.FullDomainPath() == "shared/0/DCIM/a.jpg" {
			photos = append(photos, e)
		}
	}
	require.Len(t, photos, 1)
	assert.Equal(t, "shared/0/DCIM/a.jpg", photos[0].FileID)

	content, err := c.ReadContent(photos[0])
	require.NoError(t, err)
	assert.Equal(t, "from-ab", string(content))

	pdf := byPath["shared/0/Download/x.pdf"]
	require.NotNil(t, pdf)
	assert.Equal(t, "zip:sdcard/Download/x.pdf", pdf.FileID)
	content, err = c.ReadContent(pdf)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(content))

	music := byPath["shared/0/Music"]
	require.NotNil(t, music)
	assert.True(t, music.IsDirectory())

	logged, ok := c.Log().Lookup("zip:backup/sdcard/Music/")
	require.True(t, ok)
	assert.Equal(t, "from backup/ in ZIP", logged.Details)

	assert.Len(t, c.Entries(), 5)
	assert.Equal(t, 5, c.ManifestRowCount())
}

func TestDecodeFallsBackToManifestVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	extraction(t, fs, abtest.Options{})

	c, err := NewDecoder("/case/2024-05-01_10-00-00/extraction.zip", backup.DecodeOptions{Fs: fs}).Decode()
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceName, c.Device().Name)
	assert.Equal(t, "SDK 30", c.Device().OSVersion)
}

func TestDecodeEncryptedExtraction(t *testing.T) {
	fs := afero.NewMemMapFs()
	extraction(t, fs, abtest.Options{Password: "1234", Rounds: 8})

	_, err := NewDecoder("/case", backup.DecodeOptions{Fs: fs}).Decode()
	assert.ErrorIs(t, err, errors.ErrPasswordRequired)

	_, err = NewDecoder("/case", backup.DecodeOptions{Fs: fs, Password: "0000"}).Decode()
	assert.ErrorIs(t, err, errors.ErrAuthentication)

	c, err := NewDecoder("/case", backup.DecodeOptions{Fs: fs, PasswordFunc: func() (string, error) { return "1234", nil }}).Decode()
	require.NoError(t, err)
	assert.True(t, c.Device().Encrypted)
}

func TestDetectRejectsPlainZip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/x/other.zip", []struct{ name, body string }{{"backup/backup.ab", "not a backup"}})

	dec := NewDecoder("/x", backup.DecodeOptions{Fs: fs})
	assert.False(t, dec.Detect())
	_, err := dec.Decode()
	assert.ErrorIs(t, err, errors.ErrFormat)
}
