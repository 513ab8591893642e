package android_test

import (
	"archive/tar"
	"bytes"
	stderrors "errors"
	"testing"
	"time"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/android/abtest"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRounds = 16

type member struct {
	name string
	kind byte
	body string
}

func buildTar(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Typeflag: m.kind, Mode: 0o644, ModTime: time.Unix(1700000000, 0)}
		switch m.kind {
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeSymlink:
			hdr.Linkname = m.body
		default:
			hdr.Size = int64(len(m.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(m.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func sampleTar(t *testing.T) []byte {
	return buildTar(t,
		member{name: "apps/com.whatsapp/", kind: tar.TypeDir},
		member{name: "apps/com.whatsapp/_manifest", kind: tar.TypeReg, body: "1\ncom.whatsapp\n452\n33\n"},
		member{name: "apps/com.whatsapp/db/", kind: tar.TypeDir},
		member{name: "apps/com.whatsapp/db/msgstore.db", kind: tar.TypeReg, body: "SQLite format 3"},
		member{name: "apps/com.whatsapp/db/link", kind: tar.TypeSymlink, body: "msgstore.db"},
		member{name: "shared/0/DCIM/a.jpg", kind: tar.TypeReg, body: "jpeg"},
	)
}

func writeBackup(t *testing.T, fs afero.Fs, path string, opts abtest.Options) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, abtest.Encode(&buf, sampleTar(t), opts))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestParseTarPath(t *testing.T) {
	tests := []struct {
		name               string
		domain, token, rel string
	}{
		{"apps/com.whatsapp/db/msgstore.db", "com.whatsapp", "db", "db/msgstore.db"},
		{"apps/com.x/d_sp/prefs.xml", "com.x", "d_sp", "d_sp/prefs.xml"},
		{"apps/com.x/zz/custom/file", "com.x", "zz", "zz/custom/file"},
		{"apps/com.x/_manifest", "com.x", "_manifest", "_manifest"},
		{"apps/com.x", "com.x", "", ""},
		{"apps/com.x/", "com.x", "", ""},
		{"shared/0/DCIM/a.jpg", "shared/0", "", "DCIM/a.jpg"},
		{"shared/0", "shared/0", "", ""},
		{"other/thing/x", "other", "", "thing/x"},
		{"/apps/com.x/f/.nomedia", "com.x", "f", "f/.nomedia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, token, rel := android.ParseTarPath(tt.name)
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.token, token)
			assert.Equal(t, tt.rel, rel)

			d2, t2, r2 := android.ParseTarPath(tt.name)
			assert.Equal(t, []string{domain, token, rel}, []string{d2, t2, r2})

			if tt.name[0] != '/' {
				d3, t3, r3 := android.ParseTarPath("./" + tt.name)
				assert.Equal(t, []string{domain, token, rel}, []string{d3, t3, r3})
			}
		})
	}
}

func TestTokenCatalog(t *testing.T) {
	assert.True(t, android.IsUnmappableToken("_manifest"))
	assert.True(t, android.IsUnmappableToken("k"))
	assert.True(t, android.IsKnownToken("d_nb"))
	assert.False(t, android.IsKnownToken("zz"))

	p, ok := android.TokenBasePath("db", "com.whatsapp")
	require.True(t, ok)
	assert.Equal(t, "/data/data/com.whatsapp/databases", p)
	_, ok = android.TokenBasePath("k", "com.x")
	assert.False(t, ok)
}

func TestChecksumInput(t *testing.T) {
	key := []byte{0x41, 0x80, 0xff}
	assert.Equal(t, key, android.ChecksumInput(key, 1))
	assert.Equal(t, []byte{0x41, 0xef, 0xbe, 0x80, 0xef, 0xbf, 0xbf}, android.ChecksumInput(key, 2))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := sampleTar(t)
	var buf bytes.Buffer
	require.NoError(t, abtest.Encode(&buf, plain, abtest.Options{Password: "s3cret", Rounds: testRounds, Compress: true}))

	payload, err := android.OpenPayload(bytes.NewReader(buf.Bytes()), backup.DecodeOptions{Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, payload.Header.Encrypted())
	assert.Equal(t, 6, payload.Tar.Len())

	data, err := payload.Tar.ReadMember("apps/com.whatsapp/db/msgstore.db")
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3", string(data))
}

func TestDecodeUnencrypted(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeBackup(t, fs, "/case/backup.ab", abtest.Options{Compress: true})

	dec := android.NewDecoder("/case/backup.ab", backup.DecodeOptions{Fs: fs})
	require.True(t, dec.Detect())

	c, err := dec.Decode()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, backup.KindAndroid, c.Kind())
	assert.Equal(t, "Android Device", c.Device().Name)
	assert.Equal(t, "SDK 33", c.Device().OSVersion)
	assert.False(t, c.Device().Encrypted)
	assert.Equal(t, 6, c.ManifestRowCount())

	files, dirs := c.CountFiles()
	assert.Equal(t, 3, files)
	assert.Equal(t, 2, dirs)
	assert.Equal(t, 1, c.Log().SkippedNoContent)

	byPath := map[string]*backup.Entry{}
	for _, e := range c.Entries() {
		byPath[e.FullDomainPath()] = e
	}

	dir := byPath["com.whatsapp/db"]
	require.NotNil(t, dir)
	assert.Equal(t, uint32(0o040755), dir.Mode)
	assert.True(t, dir.IsDirectory())

	db := byPath["com.whatsapp/db/msgstore.db"]
	require.NotNil(t, db)
	assert.Equal(t, "db", db.Token)
	require.NotNil(t, db.ActualSize)
	assert.Equal(t, int64(15), *db.ActualSize)

	content, err := c.ReadContent(db)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3", string(content))

	manifest, ok := c.Log().Lookup("apps/com.whatsapp/_manifest")
	require.True(t, ok)
	assert.Equal(t, "token=_manifest (no filesystem equivalent)", manifest.Details)

	link, ok := c.Log().Lookup("apps/com.whatsapp/db/link")
	require.True(t, ok)
	assert.Equal(t, backup.StatusSkippedNoContent, link.Status)
	assert.Equal(t, "Not a regular file (type=2)", link.Details)
}

func TestDecodeEncryptedPasswordSources(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeBackup(t, fs, "/case/dev/backup.ab", abtest.Options{Password: "hunter2", Rounds: testRounds})

	_, err := android.NewDecoder("/case/dev/backup.ab", backup.DecodeOptions{Fs: fs}).Decode()
	assert.ErrorIs(t, err, errors.ErrPasswordRequired)

	c, err := android.NewDecoder("/case/dev/backup.ab", backup.DecodeOptions{Fs: fs, Password: "wrong"}).Decode()
	assert.ErrorIs(t, err, errors.ErrAuthentication)
	assert.Nil(t, c)

	c, err = android.NewDecoder("/case/dev/backup.ab", backup.DecodeOptions{
		Fs:           fs,
		PasswordFunc: func() (string, error) { return "hunter2", nil },
	}).Decode()
	require.NoError(t, err)
	assert.True(t, c.Device().Encrypted)

	require.NoError(t, afero.WriteFile(fs, "/case/password.txt", []byte("hunter2\n"), 0o644))
	c, err = android.NewDecoder("/case/dev/backup.ab", backup.DecodeOptions{Fs: fs}).Decode()
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 5)
}

func TestDecodeRejectsNonBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/x.ab", []byte("NOT A BACKUP\n"), 0o644))

	dec := android.NewDecoder("/x.ab", backup.DecodeOptions{Fs: fs})
	assert.False(t, dec.Detect())
	_, err := dec.Decode()
	assert.ErrorIs(t, err, errors.ErrFormat)
}

func TestDecodeCorruptCompressedPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := append([]byte(android.Magic+"5\n1\nnone\n"), []byte("definitely not zlib")...)
	require.NoError(t, afero.WriteFile(fs, "/bad.ab", data, 0o644))

	_, err := android.NewDecoder("/bad.ab", backup.DecodeOptions{Fs: fs}).Decode()
	assert.ErrorIs(t, err, errors.ErrCorruptArchive)
}

func TestDecodeProgressCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeBackup(t, fs, "/b.ab", abtest.Options{})

	abort := stderrors.New("user abort")
	_, err := android.NewDecoder("/b.ab", backup.DecodeOptions{
		Fs: fs,
		Progress: func(percent int, message string) error {
			if percent >= 30 {
				return abort
			}
			return nil
		},
	}).Decode()
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.ErrorIs(t, err, abort)
}
