package validator

import (
	"context"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/extractor"
	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_UnsupportedExtension(t *testing.T) {
	v := New(extractor.New(nil, nil))
	_, err := v.Validate(context.Background(), "file.pptx", []byte("x"))
	assert.ErrorIs(t, err, ragerr.ErrUnsupportedFormat)
}

func TestValidate_SignatureMismatch(t *testing.T) {
	v := New(extractor.New(nil, nil))
	_, err := v.Validate(context.Background(), "file.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, ragerr.ErrSignatureMismatch)
}

func TestValidate_EmptyExtraction(t *testing.T) {
	v := New(extractor.New(nil, nil))
	_, err := v.Validate(context.Background(), "file.txt", []byte("   "))
	assert.ErrorIs(t, err, ragerr.ErrEmptyExtraction)
}

func TestValidate_LenientTextPasses(t *testing.T) {
	v := New(extractor.New(nil, nil))
	res, err := v.Validate(context.Background(), "notes.md", []byte("# hello"))
	require.NoError(t, err)
	assert.Equal(t, "# hello", res.Text)
	assert.Equal(t, extractor.FormatMD, res.Format)
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, PolicyStrict, PolicyFor(extractor.FormatPDF))
	assert.Equal(t, PolicyLenient, PolicyFor(extractor.FormatTXT))
	assert.Equal(t, PolicyStructured, PolicyFor(extractor.FormatJSON))
}
