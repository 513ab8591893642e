// Package plistutil provides utilities for working with property list files
package plistutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"howett.net/plist"
)

// Format represents the plist format
type Format int

const (
	// FormatXML is the XML plist format
	FormatXML Format = iota
	// FormatBinary is the binary plist format
	FormatBinary
	// FormatOpenStep is the OpenStep plist format
	FormatOpenStep
)

// DecodePlist decodes a property list whose root is a dictionary
func DecodePlist(data []byte) (map[string]interface{}, error) {
	var result map[string]interface{}
	decoder := plist.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, err.Error())
	}
	return result, nil
}

// Encode serializes v as a property list in the given format
func Encode(v interface{}, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var encoder *plist.Encoder
	switch format {
	case FormatBinary:
		encoder = plist.NewEncoderForFormat(&buf, plist.BinaryFormat)
	case FormatOpenStep:
		encoder = plist.NewEncoderForFormat(&buf, plist.OpenStepFormat)
	default:
		encoder = plist.NewEncoderForFormat(&buf, plist.XMLFormat)
	}
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode plist: %w", err)
	}
	return buf.Bytes(), nil
}

// GetValue retrieves a value from the plist using a dot-notation path
func GetValue(data map[string]interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")
	current := data

	for i, key := range keys {
		if i == len(keys)-1 {
			val, ok := current[key]
			return val, ok
		}

		nextLevel, ok := current[key]
		if !ok {
			return nil, false
		}

		nextMap, ok := nextLevel.(map[string]interface{})
		if !ok {
			return nil, false
		}

		current = nextMap
	}

	return nil, false
}
