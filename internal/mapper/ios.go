package mapper

import (
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
)

// DomainPaths maps the standard iOS backup domains to their filesystem roots
var DomainPaths = map[string]string{
	"KeychainDomain":           "/private/var/Keychains",
	"CameraRollDomain":         "/private/var/mobile",
	"MobileDeviceDomain":       "/private/var/MobileDevice",
	"WirelessDomain":           "/private/var/wireless",
	"InstallDomain":            "/private/var/installd",
	"KeyboardDomain":           "/private/var/mobile",
	"HomeDomain":               "/private/var/mobile",
	"SystemPreferencesDomain":  "/private/var/preferences",
	"DatabaseDomain":           "/private/var/db",
	"TonesDomain":              "/private/var/mobile",
	"RootDomain":               "/private/var/root",
	"BooksDomain":              "/private/var/mobile/Media/Books",
	"ManagedPreferencesDomain": "/private/var/Managed Preferences",
	"HomeKitDomain":            "/private/var/mobile",
	"MediaDomain":              "/private/var/mobile",
	"HealthDomain":             "/private/var/mobile/Library",
	"ProtectedDomain":          "/private/var/protected",
	"NetworkDomain":            "/private/var/networkd",
	"AppDomain":                "/private/var/mobile/Containers/Data/Application",
	"AppDomainGroup":           "/private/var/mobile/Containers/Shared/AppGroup",
	"AppDomainPlugin":          "/private/var/mobile/Containers/Data/PluginKitPlugin",
	"SysContainerDomain":       "/private/var/containers/Data/System",
	"SysSharedContainerDomain": "/private/var/containers/Shared/SystemGroup",
	"Filesystem":               "/private/var/mobile/Media",
}

// containerDomains are the domains whose identifier names a sandbox container
var containerDomains = map[string]filesystem.ContainerType{
	"AppDomain":                filesystem.ContainerApp,
	"AppDomainGroup":           filesystem.ContainerGroup,
	"AppDomainPlugin":          filesystem.ContainerPlugin,
	"SysContainerDomain":       filesystem.ContainerSystem,
	"SysSharedContainerDomain": filesystem.ContainerSystemGroup,
}

// ParseDomain splits "AppDomain-com.example.app" at the first hyphen into the base
// domain and the identifier
func ParseDomain(domain string) (base, identifier string) {
	if i := strings.Index(domain, "-"); i >= 0 {
		return domain[:i], domain[i+1:]
	}
	return domain, ""
}

// NewIOS returns the mapper for iTunes/Finder backups
func NewIOS(b backup.Backup, fs *filesystem.Acquisition) *Mapper {
	m := newMapper(b, fs, &iosResolver{containers: fs.Containers})
	m.groupKey = func(domain string) string {
		base, _ := ParseDomain(domain)
		return base
	}
	return m
}

type iosResolver struct {
	containers *filesystem.Containers
}

func (r *iosResolver) resolve(e *backup.Entry) (string, bool, string) {
	base, identifier := ParseDomain(e.Domain)

	if t, ok := containerDomains[base]; ok && identifier != "" {
		root := DomainPaths[base]
		if r.containers != nil {
			if guid, found := r.containers.Lookup(t, identifier); found {
				return joinPath(root+"/"+guid, e.RelativePath), true,
					"Resolved via container mapping: " + identifier + " -> " + guid
			}
		}
		note := "Using bundle ID as fallback (GUID not found): " + identifier
		if t == filesystem.ContainerSystem || t == filesystem.ContainerSystemGroup {
			note = "Using identifier as fallback (GUID not found): " + identifier
		}
		return joinPath(root+"/"+identifier, e.RelativePath), true, note
	}

	if root, ok := DomainPaths[base]; ok {
		return joinPath(root, e.RelativePath), true, ""
	}
	return "", false, "Unknown domain: " + e.Domain
}
