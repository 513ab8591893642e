package mapper

import (
	"fmt"
	"testing"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/magnet"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appGUID = "A1B2C3D4-E5F6-4711-8899-AABBCCDDEEFF"

type memReader map[string][]byte

func (r memReader) ReadContent(e *backup.Entry) ([]byte, error) {
	data, ok := r[e.FileID]
	if !ok {
		return nil, fmt.Errorf("no content for %s", e.FileID)
	}
	return data, nil
}

func (r memReader) Close() error { return nil }

func androidEntry(member string) *backup.Entry {
	domain, token, rel := android.ParseTarPath(member)
	return &backup.Entry{
		FileID:       member,
		Domain:       domain,
		RelativePath: rel,
		Token:        token,
		Size:         1,
		Mode:         backup.ModeRegular,
		Flags:        backup.FlagFile,
		Source:       backup.ContentSource{Kind: backup.SourceStoredFile, Name: member},
	}
}

func androidDir(member string) *backup.Entry {
	e := androidEntry(member)
	e.Mode, e.Flags, e.Size = backup.ModeDirPerm, backup.FlagDirectory, 0
	return e
}

func newAndroidBackup(entries ...*backup.Entry) *backup.Container {
	c := backup.NewContainer("/cases/device.ab", backup.KindAndroid, backup.PlatformAndroid)
	for _, e := range entries {
		c.AddEntry(e, "")
	}
	c.SetRowCount(len(entries))
	return c
}

func fsFiles(paths ...string) []*filesystem.File {
	out := make([]*filesystem.File, 0, len(paths))
	for _, p := range paths {
		out = append(out, &filesystem.File{Path: p, Size: 1})
	}
	return out
}

func fsDirs(paths ...string) []*filesystem.File {
	out := make([]*filesystem.File, 0, len(paths))
	for _, p := range paths {
		out = append(out, &filesystem.File{Path: p, IsDir: true})
	}
	return out
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "mapped", StatusMapped.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "unmappable", StatusUnmappable.String())
}

func TestAndroidMapping(t *testing.T) {
	b := newAndroidBackup(
		androidDir("apps/com.whatsapp"),
		androidEntry("apps/com.whatsapp/_manifest"),
		androidEntry("apps/com.whatsapp/db/msgstore.db"),
		androidEntry("apps/com.whatsapp/sp/prefs.xml"),
		androidEntry("apps/com.whatsapp/a/base.apk"),
		androidEntry("apps/com.missing/a/base.apk"),
		androidEntry("apps/com.whatsapp/zz/odd.bin"),
		androidEntry("shared/0/DCIM/a.jpg"),
	)
	files := append(fsDirs("/data/data/com.whatsapp", "/data/app/com.whatsapp-Xy12=="),
		fsFiles(
			"/data/data/com.whatsapp/databases/msgstore.db",
			"/data/app/com.whatsapp-Xy12==/base.apk",
			"/storage/emulated/0/DCIM/a.jpg",
			"/data/data/com.other/files/x",
		)...)
	acq := filesystem.NewAcquisition("/cases/fs.tar", filesystem.FormatTar, backup.PlatformAndroid, files)

	m := New(b, acq)
	mappings := m.MapAll()
	require.Len(t, mappings, 7)

	byPath := make(map[string]*Mapping)
	for _, mapping := range mappings {
		byPath[mapping.Entry.FileID] = mapping
	}

	manifest := byPath["apps/com.whatsapp/_manifest"]
	assert.Equal(t, StatusUnmappable, manifest.Status)
	assert.Contains(t, manifest.Notes, "no filesystem equivalent")
	assert.Empty(t, manifest.FilesystemPath)

	db := byPath["apps/com.whatsapp/db/msgstore.db"]
	assert.Equal(t, StatusMapped, db.Status)
	assert.Equal(t, "/data/data/com.whatsapp/databases/msgstore.db", db.FilesystemPath)
	assert.Equal(t, "Token 'db' mapping", db.Notes)

	prefs := byPath["apps/com.whatsapp/sp/prefs.xml"]
	assert.Equal(t, StatusNotFound, prefs.Status)
	assert.Equal(t, "/data/data/com.whatsapp/shared_prefs/prefs.xml", prefs.FilesystemPath)

	apk := byPath["apps/com.whatsapp/a/base.apk"]
	assert.Equal(t, StatusMapped, apk.Status)
	assert.Equal(t, "/data/app/com.whatsapp-Xy12==/base.apk", apk.FilesystemPath)
	assert.Equal(t, "APK dir resolved: com.whatsapp-Xy12==", apk.Notes)

	fallback := byPath["apps/com.missing/a/base.apk"]
	assert.Equal(t, StatusNotFound, fallback.Status)
	assert.Equal(t, "/data/app/com.missing/base.apk", fallback.FilesystemPath)
	assert.Contains(t, fallback.Notes, "fallback")

	unknown := byPath["apps/com.whatsapp/zz/odd.bin"]
	assert.Equal(t, StatusUnmappable, unknown.Status)
	assert.Equal(t, "Unknown token: zz", unknown.Notes)

	shared := byPath["shared/0/DCIM/a.jpg"]
	assert.Equal(t, StatusMapped, shared.Status)
	assert.Equal(t, "/data/media/0/DCIM/a.jpg", shared.FilesystemPath)
	assert.Equal(t, "/storage/emulated/0/DCIM/a.jpg", shared.File.Path)

	stats := m.Statistics()
	assert.Equal(t, 7, stats.TotalBackupFiles)
	assert.Equal(t, 4, stats.TotalFilesystemFiles)
	assert.Equal(t, 2, stats.TotalFilesystemDirectories)
	assert.Equal(t, 3, stats.MappedFiles)
	assert.Equal(t, 2, stats.NotFoundFiles)
	assert.Equal(t, 2, stats.UnmappableFiles)
	assert.Equal(t, stats.NotFoundFiles+stats.UnmappableFiles, stats.BackupOnlyFiles)
	assert.Equal(t, 1, stats.FilesystemOnlyFiles)
	assert.InDelta(t, 75.0, stats.CoveragePercent, 0.001)
	assert.Equal(t, 8, stats.ManifestRowCount)

	// three domains, the token dirs of com.whatsapp and com.missing, and shared/0/DCIM
	assert.Equal(t, 9, stats.TotalBackupDirectories)

	only := m.FilesystemOnlyEntries()
	require.Len(t, only, 1)
	assert.Equal(t, "/data/data/com.other/files/x", only[0].Path)

	assert.Len(t, m.UnmappedEntries(), 4)

	got, ok := m.MappingForFilesystemEntry(shared.File)
	require.True(t, ok)
	assert.Same(t, shared, got)

	got, ok = m.MappingForEntry(db.Entry)
	require.True(t, ok)
	assert.Same(t, db, got)

	byDomain := m.MappingsByDomain()
	assert.Len(t, byDomain["com.whatsapp"], 5)
	assert.Len(t, byDomain["shared/0"], 1)

	bases := m.DomainBasePaths()
	assert.Equal(t, "/data/media/0", bases["shared/0"])
}

func TestAndroidFullCoverage(t *testing.T) {
	b := newAndroidBackup(androidEntry("apps/com.whatsapp/db/msgstore.db"))
	acq := filesystem.NewAcquisition("fs", filesystem.FormatTar, backup.PlatformAndroid,
		fsFiles("/data/user/0/com.whatsapp/databases/msgstore.db"))

	m := NewAndroid(b, acq)
	m.MapAll()
	assert.Equal(t, StatusMapped, m.Mappings()[0].Status)
	assert.InDelta(t, 100.0, m.Statistics().CoveragePercent, 0.001)
	assert.Zero(t, m.Statistics().FilesystemOnlyFiles)
}

func TestMapAllIdempotent(t *testing.T) {
	b := newAndroidBackup(
		androidEntry("apps/com.whatsapp/db/msgstore.db"),
		androidEntry("apps/com.whatsapp/_manifest"),
	)
	acq := filesystem.NewAcquisition("fs", filesystem.FormatTar, backup.PlatformAndroid,
		fsFiles("/data/data/com.whatsapp/databases/msgstore.db"))

	m := New(b, acq)
	first := m.MapAll()
	firstStats := m.Statistics()
	second := m.MapAll()

	assert.Equal(t, firstStats, m.Statistics())
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].FilesystemPath, second[i].FilesystemPath)
	}
}

func TestAPKDirs(t *testing.T) {
	files := append(fsDirs("/data/app/~~Ab3==", "/data/app/~~Ab3==/com.signal-Qx1=="),
		fsFiles(
			"/data/app/~~Ab3==/com.signal-Qx1==/base.apk",
			"/data/app/com.example.app-2/base.apk",
			"/data/app/com.example-1/base.apk",
		)...)
	idx := filesystem.NewIndex(files, backup.PlatformAndroid)
	dirs := newAPKDirs(idx)

	dir, ok := dirs.lookup("com.signal")
	require.True(t, ok)
	assert.Equal(t, "~~Ab3==/com.signal-Qx1==", dir)

	dir, ok = dirs.lookup("com.example")
	require.True(t, ok)
	assert.Equal(t, "com.example-1", dir)

	dir, ok = dirs.lookup("com.example.app")
	require.True(t, ok)
	assert.Equal(t, "com.example.app-2", dir)

	_, ok = dirs.lookup("com.absent")
	assert.False(t, ok)
	_, ok = dirs.lookup("com.absent")
	assert.False(t, ok)
}

func TestAndroidSpecialDomains(t *testing.T) {
	live := &backup.Entry{FileID: "Live Data/processes.txt", Domain: magnet.LiveDataDomain, RelativePath: "processes.txt", Size: 3}
	root := &backup.Entry{FileID: "apps/com.whatsapp/k", Domain: "com.whatsapp", Token: "k", RelativePath: "k", Size: 3}
	shared := androidEntry("shared/0")
	shared.RelativePath = ""

	r := &androidResolver{apk: &apkDirs{cache: map[string]string{}}}

	_, ok, notes := r.resolve(live)
	assert.False(t, ok)
	assert.Contains(t, notes, "no filesystem equivalent")

	_, ok, notes = r.resolve(root)
	assert.False(t, ok)
	assert.Equal(t, "Token 'k' has no filesystem equivalent", notes)

	path, ok, notes := r.resolve(shared)
	assert.True(t, ok)
	assert.Equal(t, "/data/media/0", path)
	assert.Equal(t, "Shared storage root", notes)

	noToken := &backup.Entry{FileID: "apps/com.whatsapp/", Domain: "com.whatsapp", Size: 1}
	_, ok, notes = r.resolve(noToken)
	assert.False(t, ok)
	assert.Equal(t, "Package root entry (no token)", notes)
}

func iosEntry(domain, rel string) *backup.Entry {
	return &backup.Entry{
		FileID:       domain + "/" + rel,
		Domain:       domain,
		RelativePath: rel,
		Size:         1,
		Mode:         backup.ModeRegular,
		Flags:        backup.FlagFile,
	}
}

func TestIOSMapping(t *testing.T) {
	b := backup.NewContainer("/cases/ios", backup.KindIOS, backup.PlatformIOS)
	for _, e := range []*backup.Entry{
		iosEntry("HomeDomain", "Library/SMS/sms.db"),
		iosEntry("AppDomain-com.example.app", "Documents/data.json"),
		iosEntry("AppDomain-com.unknown.app", "Documents/x"),
		iosEntry("SysContainerDomain-com.apple.system", "Library/y"),
		iosEntry("MysteryDomain", "z"),
	} {
		b.AddEntry(e, "")
	}

	acq := filesystem.NewAcquisition("/cases/ios.tar", filesystem.FormatTar, backup.PlatformIOS, fsFiles(
		"/private/var/mobile/Library/SMS/sms.db",
		"/var/mobile/Containers/Data/Application/"+appGUID+"/Documents/data.json",
	))
	acq.Containers.Set(filesystem.ContainerApp, "com.example.app", appGUID)

	m := New(b, acq)
	mappings := m.MapAll()
	require.Len(t, mappings, 5)

	assert.Equal(t, StatusMapped, mappings[0].Status)
	assert.Equal(t, "/private/var/mobile/Library/SMS/sms.db", mappings[0].FilesystemPath)
	assert.Empty(t, mappings[0].Notes)

	assert.Equal(t, StatusMapped, mappings[1].Status)
	assert.Equal(t, "/private/var/mobile/Containers/Data/Application/"+appGUID+"/Documents/data.json", mappings[1].FilesystemPath)
	assert.Equal(t, "Resolved via container mapping: com.example.app -> "+appGUID, mappings[1].Notes)

	assert.Equal(t, StatusNotFound, mappings[2].Status)
	assert.Equal(t, "/private/var/mobile/Containers/Data/Application/com.unknown.app/Documents/x", mappings[2].FilesystemPath)
	assert.Equal(t, "Using bundle ID as fallback (GUID not found): com.unknown.app", mappings[2].Notes)

	assert.Equal(t, StatusNotFound, mappings[3].Status)
	assert.Equal(t, "Using identifier as fallback (GUID not found): com.apple.system", mappings[3].Notes)

	assert.Equal(t, StatusUnmappable, mappings[4].Status)
	assert.Equal(t, "Unknown domain: MysteryDomain", mappings[4].Notes)

	byDomain := m.MappingsByDomain()
	assert.Len(t, byDomain["AppDomain"], 2)
	assert.Len(t, byDomain["HomeDomain"], 1)

	summaries := m.DomainSummaries()
	require.NotEmpty(t, summaries)
	assert.Equal(t, "AppDomain", summaries[0].Domain)
	assert.Equal(t, 2, summaries[0].Total)
	assert.Equal(t, 1, summaries[0].Mapped)
	assert.InDelta(t, 50.0, summaries[0].Coverage, 0.001)

	bases := m.DomainBasePaths()
	assert.Equal(t, "/private/var/mobile", bases["HomeDomain"])
	assert.Equal(t, "/private/var/mobile/Containers/Data/Application/"+appGUID, bases["AppDomain-com.example.app"])

	assert.InDelta(t, 100.0, m.Statistics().CoveragePercent, 0.001)
}

func TestParseDomain(t *testing.T) {
	base, id := ParseDomain("AppDomainGroup-group.com.example-shared")
	assert.Equal(t, "AppDomainGroup", base)
	assert.Equal(t, "group.com.example-shared", id)

	base, id = ParseDomain("HomeDomain")
	assert.Equal(t, "HomeDomain", base)
	assert.Empty(t, id)
}

func TestIOSContainerDomainWithoutIdentifier(t *testing.T) {
	r := &iosResolver{containers: filesystem.NewContainers()}
	path, ok, notes := r.resolve(iosEntry("AppDomain", "x"))
	assert.True(t, ok)
	assert.Equal(t, "/private/var/mobile/Containers/Data/Application/x", path)
	assert.Empty(t, notes)
}

func TestFilesystemMapper(t *testing.T) {
	files := append(fsDirs("/data/data/com.whatsapp"), fsFiles(
		"/data/data/com.whatsapp/databases/msgstore.db",
		"/data/data/com.whatsapp/files/a",
	)...)
	source := filesystem.NewAcquisition("a.tar", filesystem.FormatTar, backup.PlatformAndroid, files)
	reference := filesystem.NewAcquisition("b.tar", filesystem.FormatTar, backup.PlatformAndroid, append(
		fsDirs("/data/data/com.whatsapp"),
		fsFiles("/data/data/com.whatsapp/databases/msgstore.db")...,
	))

	b := filesystem.AsBackup(source)
	m := New(b, reference)
	mappings := m.MapAll()
	require.Len(t, mappings, 2)

	assert.Equal(t, StatusMapped, mappings[0].Status)
	assert.Equal(t, StatusNotFound, mappings[1].Status)
	assert.Equal(t, "Not found in reference filesystem", mappings[1].Notes)

	stats := m.Statistics()
	assert.Equal(t, 2, stats.TotalBackupFiles)
	assert.Equal(t, 1, stats.TotalBackupDirectories)
	assert.Zero(t, stats.UnmappableFiles)
	assert.InDelta(t, 100.0, stats.CoveragePercent, 0.001)
}

func TestVerifyHashes(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "/acq/data/data/com.whatsapp/databases/msgstore.db", []byte("same"), 0o644))
	require.NoError(t, afero.WriteFile(memFs, "/acq/data/data/com.whatsapp/files/note.txt", []byte("filesystem"), 0o644))

	acq, err := filesystem.NewLoader("/acq", filesystem.LoaderOptions{Fs: memFs}).Load()
	require.NoError(t, err)
	defer acq.Close()
	require.Equal(t, backup.PlatformAndroid, acq.Platform)

	db := androidEntry("apps/com.whatsapp/db/msgstore.db")
	note := androidEntry("apps/com.whatsapp/f/note.txt")
	gone := androidEntry("apps/com.whatsapp/f/gone.txt")
	b := newAndroidBackup(db, note, gone)
	b.SetReader(memReader{db.FileID: []byte("same"), note.FileID: []byte("backup")})

	m := New(b, acq)
	m.MapAll()
	require.Equal(t, 2, m.Statistics().MappedFiles)

	hasher, err := cryptoutil.NewHasher(cryptoutil.SHA256)
	require.NoError(t, err)
	results := m.VerifyHashes(hasher)
	require.Len(t, results, 2)

	assert.True(t, results[0].Match)
	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].BackupHash)
	assert.False(t, results[1].Match)
	assert.NotEqual(t, results[1].BackupHash, results[1].FilesystemHash)

	assert.Equal(t, HashSummary{Checked: 2, Matched: 1, Mismatched: 1}, Summarize(results))
}

func TestVerifyHashesReadFailure(t *testing.T) {
	db := androidEntry("apps/com.whatsapp/db/msgstore.db")
	b := newAndroidBackup(db)
	acq := filesystem.NewAcquisition("fs", filesystem.FormatTar, backup.PlatformAndroid,
		fsFiles("/data/data/com.whatsapp/databases/msgstore.db"))

	m := New(b, acq)
	m.MapAll()
	hasher, err := cryptoutil.NewHasher(cryptoutil.MD5)
	require.NoError(t, err)

	results := m.VerifyHashes(hasher)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, results[0].Match)
	assert.Equal(t, 1, Summarize(results).Failed)
}
