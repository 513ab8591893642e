// Package jsonutil holds the JSON helpers behind the machine-readable report
package jsonutil

import (
	"encoding/json"
	"io"
	"math"
)

// Encode writes v as indented JSON followed by a newline
func Encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Round rounds x to the given number of decimal places
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
