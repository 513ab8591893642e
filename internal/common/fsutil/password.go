// fsutil/password.go
package fsutil

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultPasswordFile is the conventional name of a file carrying a backup password
const DefaultPasswordFile = "password.txt"

// FindPasswordFile looks for a password file named name in each directory in order and
// returns the first non-empty line found.
func FindPasswordFile(fs afero.Fs, name string, dirs ...string) (string, bool) {
	if name == "" {
		name = DefaultPasswordFile
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if !FileExists(fs, candidate) {
			continue
		}
		line, err := ReadFirstLine(fs, candidate)
		if err == nil && line != "" {
			return line, true
		}
	}
	return "", false
}
