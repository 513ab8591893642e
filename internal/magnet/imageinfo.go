package magnet

import (
	"bufio"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/spf13/afero"
)

// ImageInfoFile is the acquisition summary Magnet Acquire writes beside the image
const ImageInfoFile = "image_info.txt"

// DefaultDeviceName is used when image_info.txt names no product model
const DefaultDeviceName = "Magnet Quick Image"

// ImageInfo holds the fields read from image_info.txt
type ImageInfo struct {
	ProductModel string
	OSVersion    string
}

// ReadImageInfo scans image_info.txt for the product model and OS version lines
func ReadImageInfo(fs afero.Fs, path string) (ImageInfo, error) {
	var info ImageInfo
	f, err := fs.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Product Model:"):
			info.ProductModel = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		case strings.HasPrefix(line, "Operating System Version:"):
			info.OSVersion = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		}
	}
	return info, scanner.Err()
}

// imageInfoNear reads image_info.txt beside zipPath, if any
func imageInfoNear(fs afero.Fs, zipPath string) ImageInfo {
	path := fsutil.Sibling(zipPath, ImageInfoFile)
	if !fsutil.FileExists(fs, path) {
		return ImageInfo{}
	}
	info, err := ReadImageInfo(fs, path)
	if err != nil {
		logger.LogWarn("Unreadable image info", map[string]interface{}{"path": path, "error": err.Error()})
	}
	return info
}
