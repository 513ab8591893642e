package backup

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/spf13/afero"
)

// ProgressFunc receives a percentage and a message during long operations. Returning an
// error aborts the operation; the error comes back wrapped in ErrCancelled.
type ProgressFunc func(percent int, message string) error

// Report invokes f when set
func (f ProgressFunc) Report(percent int, format string, args ...interface{}) error {
	if f == nil {
		return nil
	}
	if err := f(percent, fmt.Sprintf(format, args...)); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCancelled, err)
	}
	return nil
}

// PasswordFunc is asked for a password after every other source came up empty
type PasswordFunc func() (string, error)

// DecodeOptions configures a container decode
type DecodeOptions struct {
	Password         string
	PasswordFunc     PasswordFunc
	PasswordFile     string
	Progress         ProgressFunc
	ProgressInterval int
	TempDir          string
	Fs               afero.Fs
}

// WithDefaults fills unset fields
func (o DecodeOptions) WithDefaults() DecodeOptions {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.PasswordFile == "" {
		o.PasswordFile = "password.txt"
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 500
	}
	return o
}

// PasswordLookup returns a password found out of band, such as a password file
type PasswordLookup func() (string, bool)

// ResolvePassword applies the password order: the explicit password, each lookup in
// turn, then the callback. Nothing found is ErrPasswordRequired.
func ResolvePassword(opts DecodeOptions, lookups ...PasswordLookup) (string, error) {
	if opts.Password != "" {
		return opts.Password, nil
	}
	for _, lookup := range lookups {
		if pw, ok := lookup(); ok && pw != "" {
			return pw, nil
		}
	}
	if opts.PasswordFunc != nil {
		pw, err := opts.PasswordFunc()
		if err != nil {
			return "", fmt.Errorf("%w: %w", errors.ErrPasswordRequired, err)
		}
		if pw != "" {
			return pw, nil
		}
	}
	return "", errors.ErrPasswordRequired
}
