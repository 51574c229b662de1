package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// extractDocx extracts plain text from .docx bytes. A .docx file is a ZIP
// archive containing XML; the body text lives in word/document.xml as
// <w:t> elements.
func extractDocx(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extractor.extractDocx: open zip: %w: %v", ragerr.ErrExtractionFailed, err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("extractor.extractDocx: word/document.xml not found: %w", ragerr.ErrExtractionFailed)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("extractor.extractDocx: open document.xml: %w: %v", ragerr.ErrExtractionFailed, err)
	}
	defer rc.Close()

	xmlData, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("extractor.extractDocx: read document.xml: %w: %v", ragerr.ErrExtractionFailed, err)
	}

	return parseDocxXML(xmlData)
}

// parseDocxXML walks the OOXML body, inserting newlines at paragraph
// boundaries and tabs/line breaks for <w:tab>/<w:br>.
func parseDocxXML(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose

	var (
		buf         strings.Builder
		inText      bool
		inPara      bool
		paraHasText bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extractor.parseDocxXML: %w: %v", ragerr.ErrExtractionFailed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inPara && paraHasText {
					buf.WriteByte('\n')
				}
				inPara = true
				paraHasText = false
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br":
				buf.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if paraHasText {
					buf.WriteByte('\n')
				}
				inPara = false
			}
		case xml.CharData:
			if inText {
				if text := string(t); text != "" {
					buf.WriteString(text)
					paraHasText = true
				}
			}
		}
	}

	return strings.TrimSpace(buf.String()), nil
}
