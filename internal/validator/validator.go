// Package validator implements C2: three-tier admission of an uploaded
// document — extension allow-list, magic-byte/MIME signature match,
// successful non-empty extraction.
package validator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/extractor"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// Policy names a format's tier-2 strictness.
type Policy int

const (
	// PolicyStrict requires a signature match (PDF, DOCX).
	PolicyStrict Policy = iota
	// PolicyStructured has no tier-2 signature and requires a successful
	// parse at tier 3 (JSON/XML).
	PolicyStructured
	// PolicyLenient skips tier 2 for unsigned text formats.
	PolicyLenient
)

var policies = map[extractor.Format]Policy{
	extractor.FormatPDF:    PolicyStrict,
	extractor.FormatDOCX:   PolicyStrict,
	extractor.FormatJSON:   PolicyStructured,
	extractor.FormatXML:    PolicyStructured,
	extractor.FormatHTML:   PolicyLenient,
	extractor.FormatCSV:    PolicyLenient,
	extractor.FormatYAML:   PolicyLenient,
	extractor.FormatTXT:    PolicyLenient,
	extractor.FormatMD:     PolicyLenient,
	extractor.FormatLOG:    PolicyLenient,
	extractor.FormatSource: PolicyLenient,
}

var magicBytes = map[extractor.Format][]byte{
	extractor.FormatPDF:  []byte("%PDF"),
	extractor.FormatDOCX: {'P', 'K', 0x03, 0x04},
}

// PolicyFor reports the admission policy governing format.
func PolicyFor(format extractor.Format) Policy {
	return policies[format]
}

// Result carries the extracted text once a document clears all three tiers.
type Result struct {
	Format extractor.Format
	Text   string
}

// Validator runs the three-tier admission pipeline of §4.2.
type Validator struct {
	extractor *extractor.Extractor
}

// New builds a Validator over the given Extractor.
func New(ex *extractor.Extractor) *Validator {
	return &Validator{extractor: ex}
}

// Validate runs all three tiers for a file named filename with content data.
func (v *Validator) Validate(ctx context.Context, filename string, data []byte) (*Result, error) {
	ext := extOf(filename)
	format, ok := extractor.FormatForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("validator.Validate: extension %q: %w", ext, ragerr.ErrUnsupportedFormat)
	}

	if sig, needsSig := magicBytes[format]; needsSig {
		if !bytes.HasPrefix(data, sig) {
			return nil, fmt.Errorf("validator.Validate: %q: %w", filename, ragerr.ErrSignatureMismatch)
		}
	}

	text, err := v.extractor.Extract(ctx, format, data)
	if err != nil {
		return nil, fmt.Errorf("validator.Validate: %q: %w", filename, err)
	}

	return &Result{Format: format, Text: text}, nil
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i+1:]
		}
	}
	return ""
}
