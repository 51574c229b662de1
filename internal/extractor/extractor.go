// Package extractor implements C1: translating an uploaded blob of a
// declared format into normalized UTF-8 text. PDF and HTML are converted to
// Markdown, JSON/XML are re-serialized as YAML, DOCX has the text of its
// word/document.xml body extracted, everything else passes through as
// decoded UTF-8.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"gopkg.in/yaml.v3"
)

// Format names one of the declared input formats C1 knows how to translate.
type Format string

const (
	FormatPDF    Format = "pdf"
	FormatHTML   Format = "html"
	FormatJSON   Format = "json"
	FormatXML    Format = "xml"
	FormatCSV    Format = "csv"
	FormatYAML   Format = "yaml"
	FormatTXT    Format = "txt"
	FormatMD     Format = "md"
	FormatLOG    Format = "log"
	FormatDOCX   Format = "docx"
	FormatSource Format = "source"
)

// extensionFormats maps a lowercase file extension (without the dot) to the
// Format that handles it. Source-code extensions are pass-through, same as
// plain text.
var extensionFormats = map[string]Format{
	"pdf":  FormatPDF,
	"html": FormatHTML,
	"htm":  FormatHTML,
	"json": FormatJSON,
	"xml":  FormatXML,
	"csv":  FormatCSV,
	"yaml": FormatYAML,
	"yml":  FormatYAML,
	"txt":  FormatTXT,
	"md":   FormatMD,
	"log":  FormatLOG,
	"docx": FormatDOCX,
	"py":   FormatSource,
	"js":   FormatSource,
	"ts":   FormatSource,
	"java": FormatSource,
	"go":   FormatSource,
	"c":    FormatSource,
	"cpp":  FormatSource,
	"rb":   FormatSource,
	"php":  FormatSource,
	"sh":   FormatSource,
}

// FormatForExtension resolves a file extension (with or without a leading
// dot) to its Format, or false if the extension is not in the allow-list.
func FormatForExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	f, ok := extensionFormats[ext]
	return f, ok
}

// PDFBackend abstracts the external PDF-to-text backend (Document AI). It is
// satisfied by gcpclient.DocumentAIAdapter.
type PDFBackend interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// HTMLConverter abstracts HTML-to-Markdown conversion so tests can stub it
// without exercising the real html-to-markdown converter.
type HTMLConverter interface {
	ConvertHTML(html string) (string, error)
}

// Extractor routes bytes through the per-format rules of §4.1.
type Extractor struct {
	pdf  PDFBackend
	html HTMLConverter
}

// New builds an Extractor. pdf may be nil if PDF ingestion is not configured
// for this deployment; html defaults to the html-to-markdown converter.
func New(pdf PDFBackend, html HTMLConverter) *Extractor {
	if html == nil {
		html = defaultHTMLConverter{}
	}
	return &Extractor{pdf: pdf, html: html}
}

// Extract converts data, declared as format, into normalized UTF-8 text.
func (e *Extractor) Extract(ctx context.Context, format Format, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch format {
	case FormatPDF:
		text, err = e.extractPDF(ctx, data)
	case FormatHTML:
		text, err = e.extractHTML(data)
	case FormatJSON:
		text, err = extractJSON(data)
	case FormatXML:
		text, err = extractXML(data)
	case FormatDOCX:
		text, err = extractDocx(data)
	case FormatCSV, FormatYAML, FormatTXT, FormatMD, FormatLOG, FormatSource:
		text, err = passthrough(data)
	default:
		return "", fmt.Errorf("extractor.Extract: format %q: %w", format, ragerr.ErrUnsupportedFormat)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extractor.Extract: %w", ragerr.ErrEmptyExtraction)
	}
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	if e.pdf == nil {
		return "", fmt.Errorf("extractor.extractPDF: no PDF backend configured: %w", ragerr.ErrExtractionFailed)
	}
	text, err := e.pdf.ExtractText(ctx, data)
	if err != nil {
		return "", fmt.Errorf("extractor.extractPDF: %w: %v", ragerr.ErrExtractionFailed, err)
	}
	return text, nil
}

func (e *Extractor) extractHTML(data []byte) (string, error) {
	md, err := e.html.ConvertHTML(string(data))
	if err != nil {
		return "", fmt.Errorf("extractor.extractHTML: %w: %v", ragerr.ErrExtractionFailed, err)
	}
	return md, nil
}

// extractJSON parses the input and re-serializes it as YAML, which tokenizes
// with far less punctuation noise than raw JSON.
func extractJSON(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("extractor.extractJSON: %w: %v", ragerr.ErrExtractionFailed, err)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("extractor.extractJSON: marshal yaml: %w", err)
	}
	return string(out), nil
}

// passthrough validates the bytes decode as UTF-8 and returns them as-is.
func passthrough(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extractor.passthrough: invalid UTF-8: %w", ragerr.ErrExtractionFailed)
	}
	return string(data), nil
}

type defaultHTMLConverter struct{}

func (defaultHTMLConverter) ConvertHTML(html string) (string, error) {
	return convertHTMLToMarkdown(html)
}
