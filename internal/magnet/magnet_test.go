package magnet

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"testing"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil/compressiontest"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarFile struct {
	name string
	body string
	dir  bool
}

func tarOf(t *testing.T, files ...tarFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(f.body))}
		if f.dir {
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeDir, 0o771, 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(f.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func quickImage(t *testing.T, fs afero.Fs, sdcard []byte) {
	t.Helper()
	adb := tarOf(t,
		tarFile{name: "apps/com.x/", dir: true},
		tarFile{name: "apps/com.x/f/a.txt", body: "app file"},
		tarFile{name: "shared/0/DCIM/p.jpg", body: "from-adb"},
	)
	empty, err := compressiontest.Compress(nil, compression.FormatGzip)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{ADBTarEntry, adb},
		{SdcardTarEntry, sdcard},
		{"storage-sdcard0.tar.gz", empty},
		{"Live Data/", nil},
		{"Live Data/dumpsys.txt", []byte("dumpsys output")},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, "/acq/QuickImage.zip", buf.Bytes(), 0o644))
}

func TestDecodeQuickImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	sdcard, err := compressiontest.Compress(tarOf(t,
		tarFile{name: "./sdcard/", dir: true},
		tarFile{name: "./sdcard/DCIM/p.jpg", body: "from-sdcard"},
		tarFile{name: "./sdcard/Download/b.txt", body: "download"},
	), compression.FormatGzip)
	require.NoError(t, err)
	quickImage(t, fs, sdcard)
	require.NoError(t, afero.WriteFile(fs, "/acq/image_info.txt",
		[]byte("Case Number: 1\nProduct Model: Pixel 7\nOperating System Version: 14\n"), 0o644))

	dec := NewDecoder("/acq", backup.DecodeOptions{Fs: fs})
	require.True(t, dec.Detect())
	c, err := dec.Decode()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, backup.KindMagnet, c.Kind())
	assert.Equal(t, "Pixel 7", c.Device().Name)
	assert.Equal(t, "Android 14", c.Device().OSVersion)
	assert.False(t, c.Device().Encrypted)

	byPath := map[string]*backup.Entry{}
	for _, e := range c.Entries() {
		_, dup := byPath[e.FullDomainPath()]
		require.False(t, dup, e.FullDomainPath())
		byPath[e.FullDomainPath()] = e
	}
	assert.Len(t, c.Entries(), 6)

	photo := byPath["shared/0/DCIM/p.jpg"]
	require.NotNil(t, photo)
	data, err := c.ReadContent(photo)
	require.NoError(t, err)
	assert.Equal(t, "from-adb", string(data))

	dl := byPath["shared/0/Download/b.txt"]
	require.NotNil(t, dl)
	assert.Equal(t, "sdcard_tar:./sdcard/Download/b.txt", dl.FileID)
	data, err = c.ReadContent(dl)
	require.NoError(t, err)
	assert.Equal(t, "download", string(data))

	live := byPath["Live Data/dumpsys.txt"]
	require.NotNil(t, live)
	data, err = c.ReadContent(live)
	require.NoError(t, err)
	assert.Equal(t, "dumpsys output", string(data))
	logged, ok := c.Log().Lookup("zip:Live Data/dumpsys.txt")
	require.True(t, ok)
	assert.Equal(t, "Live Data (agent-captured, not mappable)", logged.Details)

	dir := byPath["com.x"]
	require.NotNil(t, dir)
	assert.Equal(t, uint32(0o040771), dir.Mode)
}

func TestDecodeSkipsEmptySdcardArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	empty, err := compressiontest.Compress(nil, compression.FormatGzip)
	require.NoError(t, err)
	quickImage(t, fs, empty)

	c, err := NewDecoder("/acq/QuickImage.zip", backup.DecodeOptions{Fs: fs}).Decode()
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceName, c.Device().Name)
	assert.Empty(t, c.Device().OSVersion)
	assert.Len(t, c.Entries(), 4)
}

func TestDetectRejectsOtherZip(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("something.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, "/acq/other.zip", buf.Bytes(), 0o644))

	dec := NewDecoder("/acq", backup.DecodeOptions{Fs: fs})
	assert.False(t, dec.Detect())
	_, err = dec.Decode()
	assert.ErrorIs(t, err, errors.ErrFormat)
}
