package filesystem

import (
	"fmt"
	"regexp"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/plistutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ContainerMetadataFile names the plist iOS keeps at the root of every data container
const ContainerMetadataFile = ".com.apple.mobile_container_manager.metadata.plist"

// ApplicationStateDB is the FrontBoard database suffix searched for as a GUID fallback
const ApplicationStateDB = "FrontBoard/applicationState.db"

// applicationStateQuery qualifies every column; both tables carry application_identifier
const applicationStateQuery = `SELECT application_identifier_tab.application_identifier, kvs.value
FROM application_identifier_tab
JOIN kvs ON application_identifier_tab.id = kvs.application_identifier
WHERE kvs.key = 'compatibilityInfo'`

// ContainerType is the kind of sandbox container a GUID belongs to
type ContainerType int

const (
	ContainerApp ContainerType = iota
	ContainerGroup
	ContainerPlugin
	ContainerSystem
	ContainerSystemGroup
)

func (t ContainerType) String() string {
	switch t {
	case ContainerApp:
		return "app"
	case ContainerGroup:
		return "group"
	case ContainerPlugin:
		return "plugin"
	case ContainerSystem:
		return "system"
	case ContainerSystemGroup:
		return "system_group"
	}
	return "unknown"
}

var containerTypes = []ContainerType{ContainerApp, ContainerGroup, ContainerPlugin, ContainerSystem, ContainerSystemGroup}

// containerPatterns lists the path fragments that identify each container type. Both
// capitalizations occur on devices.
var containerPatterns = map[ContainerType][]string{
	ContainerApp:         {"/Containers/Data/Application/", "/containers/Data/Application/"},
	ContainerGroup:       {"/Containers/Shared/AppGroup/", "/containers/Shared/AppGroup/"},
	ContainerPlugin:      {"/Containers/Data/PluginKitPlugin/", "/containers/Data/PluginKitPlugin/"},
	ContainerSystem:      {"/containers/Data/System/", "/Containers/Data/System/"},
	ContainerSystemGroup: {"/containers/Shared/SystemGroup/", "/Containers/Shared/SystemGroup/"},
}

// bundlePatterns hold app binaries, never user data
var bundlePatterns = []string{"/containers/Bundle/Application/", "/Containers/Bundle/Application/"}

var guidPattern = regexp.MustCompile(`(?i)[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}`)

// containerTypeOf classifies a path by the container directory it lies in
func containerTypeOf(path string) (ContainerType, bool) {
	for _, p := range bundlePatterns {
		if strings.Contains(path, p) {
			return 0, false
		}
	}
	for _, t := range containerTypes {
		for _, p := range containerPatterns[t] {
			if strings.Contains(path, p) {
				return t, true
			}
		}
	}
	return 0, false
}

// ContainerGUIDFromPath returns the GUID directory holding a container metadata plist
func ContainerGUIDFromPath(path string) (string, bool) {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i] != ContainerMetadataFile {
			continue
		}
		guid := parts[i-1]
		if len(guid) == 36 && strings.Count(guid, "-") == 4 && uuid.Validate(guid) == nil {
			return guid, true
		}
	}
	return "", false
}

// Containers maps bundle identifiers to container GUIDs per container type, plus a
// combined map across all types
type Containers struct {
	byType   map[ContainerType]map[string]string
	combined map[string]string
}

// NewContainers creates empty mappings
func NewContainers() *Containers {
	c := &Containers{
		byType:   make(map[ContainerType]map[string]string, len(containerTypes)),
		combined: make(map[string]string),
	}
	for _, t := range containerTypes {
		c.byType[t] = make(map[string]string)
	}
	return c
}

// Set records a GUID, replacing any earlier one
func (c *Containers) Set(t ContainerType, bundleID, guid string) {
	c.byType[t][bundleID] = guid
	c.combined[bundleID] = guid
}

// fill records a GUID only where no mapping exists yet
func (c *Containers) fill(t ContainerType, bundleID, guid string) {
	if _, ok := c.byType[t][bundleID]; !ok {
		c.byType[t][bundleID] = guid
	}
	if _, ok := c.combined[bundleID]; !ok {
		c.combined[bundleID] = guid
	}
}

// Lookup returns the GUID of bundleID's container of type t
func (c *Containers) Lookup(t ContainerType, bundleID string) (string, bool) {
	guid, ok := c.byType[t][bundleID]
	return guid, ok
}

// LookupAny returns the GUID from the combined mapping
func (c *Containers) LookupAny(bundleID string) (string, bool) {
	guid, ok := c.combined[bundleID]
	return guid, ok
}

// Mapping returns a copy of the mapping for t
func (c *Containers) Mapping(t ContainerType) map[string]string {
	out := make(map[string]string, len(c.byType[t]))
	for k, v := range c.byType[t] {
		out[k] = v
	}
	return out
}

// Len returns the number of bundle identifiers with any known container
func (c *Containers) Len() int {
	return len(c.combined)
}

// applyMetadata records the container described by one metadata plist
func (c *Containers) applyMetadata(path string, data []byte) error {
	t, ok := containerTypeOf(path)
	if !ok {
		return nil
	}
	plist, err := plistutil.DecodePlist(data)
	if err != nil {
		return err
	}
	bundleID, _ := plistutil.GetString(plist, "MCMMetadataIdentifier")
	if bundleID == "" {
		return nil
	}
	guid, ok := ContainerGUIDFromPath(path)
	if !ok {
		return nil
	}
	c.Set(t, bundleID, guid)
	return nil
}

// applyApplicationState fills gaps from the compatibilityInfo rows of applicationState.db.
// Databases without the expected tables fail to prepare; callers treat that as a missing
// fallback, not as a failed load.
func (c *Containers) applyApplicationState(db []byte, tempDir string) error {
	osFs := afero.NewOsFs()
	tmp, err := afero.TempFile(osFs, tempDir, "appstate-*.db")
	if err != nil {
		return errors.Wrap(err, "could not create temporary applicationState.db")
	}
	defer osFs.Remove(tmp.Name())

	_, err = tmp.Write(db)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "could not write temporary applicationState.db")
	}

	conn, err := sqlite.OpenConn(tmp.Name(), sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return errors.Wrap(err, "could not open applicationState.db")
	}
	defer conn.Close()

	stmt, _, err := conn.PrepareTransient(applicationStateQuery)
	if err != nil {
		return errors.Wrap(err, "could not prepare applicationState query")
	}
	defer stmt.Finalize()

	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return errors.Wrap(err, "could not read applicationState.db")
		}
		if !hasRow {
			return nil
		}
		bundleID := stmt.ColumnText(0)
		n := stmt.ColumnLen(1)
		if bundleID == "" || n == 0 {
			continue
		}
		blob := make([]byte, n)
		stmt.ColumnBytes(1, blob)
		c.applyCompatibilityInfo(bundleID, blob)
	}
}

func (c *Containers) applyCompatibilityInfo(bundleID string, blob []byte) {
	raw, err := plistutil.DecodePlist(blob)
	if err != nil {
		logger.LogDebug("Unreadable compatibilityInfo", map[string]interface{}{"bundle_id": bundleID, "error": err.Error()})
		return
	}
	info, ok := plistutil.ResolveKeyedArchive(raw)
	if !ok {
		return
	}
	sandbox, _ := plistutil.GetString(info, "sandboxPath")
	if sandbox == "" {
		sandbox, _ = plistutil.GetString(info, "containerPath")
	}
	guid := guidPattern.FindString(sandbox)
	if guid == "" {
		return
	}
	guid = strings.ToUpper(guid)

	switch {
	case strings.Contains(sandbox, "/Containers/Data/Application/"):
		c.fill(ContainerApp, bundleID, guid)
	case strings.Contains(sandbox, "/Containers/Shared/AppGroup/"):
		c.fill(ContainerGroup, bundleID, guid)
	case strings.Contains(sandbox, "/Containers/Data/PluginKitPlugin/"):
		c.fill(ContainerPlugin, bundleID, guid)
	default:
		if _, ok := c.combined[bundleID]; !ok {
			c.combined[bundleID] = guid
		}
	}
}

func (c *Containers) String() string {
	return fmt.Sprintf("app=%d group=%d plugin=%d system=%d system_group=%d",
		len(c.byType[ContainerApp]), len(c.byType[ContainerGroup]), len(c.byType[ContainerPlugin]),
		len(c.byType[ContainerSystem]), len(c.byType[ContainerSystemGroup]))
}
