package ufed

import (
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// DefaultDeviceName is used when no .ufd names the device
const DefaultDeviceName = "ALEX Extraction"

// UFDInfo is the [DeviceInfo] section of a UFED descriptor
type UFDInfo struct {
	Path   string
	Vendor string
	Model  string
	OS     string
}

// DeviceName joins vendor and model, falling back to the model alone
func (u UFDInfo) DeviceName() string {
	switch {
	case u.Vendor != "" && u.Model != "":
		return u.Vendor + " " + u.Model
	case u.Model != "":
		return u.Model
	default:
		return DefaultDeviceName
	}
}

// AndroidVersion returns "Android <OS>" or an empty string
func (u UFDInfo) AndroidVersion() string {
	if u.OS == "" {
		return ""
	}
	return "Android " + u.OS
}

// FindUFD returns the first .ufd file in dir
func FindUFD(fs afero.Fs, dir string) (string, bool) {
	names, err := fsutil.ListDir(fs, dir)
	if err != nil {
		return "", false
	}
	for _, name := range names {
		if strings.HasSuffix(strings.ToLower(name), ".ufd") {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// ReadUFD parses the [DeviceInfo] section of a .ufd file. Keys are matched
// case-insensitively.
func ReadUFD(fs afero.Fs, path string) (UFDInfo, error) {
	info := UFDInfo{Path: path}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return info, err
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:         true,
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return info, err
	}

	section, err := cfg.GetSection("DeviceInfo")
	if err != nil {
		return info, nil
	}
	info.Vendor = strings.TrimSpace(section.Key("Vendor").String())
	info.Model = strings.TrimSpace(section.Key("Model").String())
	info.OS = strings.TrimSpace(section.Key("OS").String())
	return info, nil
}

// deviceInfoNear reads the .ufd beside zipPath. A missing or unreadable descriptor
// yields the defaults.
func deviceInfoNear(fs afero.Fs, zipPath string) UFDInfo {
	path, ok := FindUFD(fs, filepath.Dir(zipPath))
	if !ok {
		return UFDInfo{}
	}
	info, err := ReadUFD(fs, path)
	if err != nil {
		logger.LogWarn("Unreadable UFD descriptor", map[string]interface{}{"path": path, "error": err.Error()})
		return UFDInfo{}
	}
	return info
}
