package extractor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
	"gopkg.in/yaml.v3"
)

// extractXML parses the XML tree and re-serializes it as YAML, same
// rationale as extractJSON: lower punctuation noise for the tokenizer.
func extractXML(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	root, err := parseXMLElement(decoder, nil)
	if err != nil {
		return "", fmt.Errorf("extractor.extractXML: %w: %v", ragerr.ErrExtractionFailed, err)
	}

	out, err := yaml.Marshal(map[string]any{root.name: root.toMap()})
	if err != nil {
		return "", fmt.Errorf("extractor.extractXML: marshal yaml: %w", err)
	}
	return string(out), nil
}

type parsedElement struct {
	name     string
	attrs    map[string]string
	text     string
	children []*parsedElement
}

func (p *parsedElement) toMap() map[string]any {
	m := map[string]any{}
	if len(p.attrs) > 0 {
		m["attrs"] = p.attrs
	}
	if text := trimText(p.text); text != "" {
		m["text"] = text
	}
	if len(p.children) > 0 {
		childMap := map[string]any{}
		for _, c := range p.children {
			if existing, ok := childMap[c.name]; ok {
				switch v := existing.(type) {
				case []any:
					childMap[c.name] = append(v, c.toMap())
				default:
					childMap[c.name] = []any{v, c.toMap()}
				}
			} else {
				childMap[c.name] = c.toMap()
			}
		}
		m["children"] = childMap
	}
	return m
}

// parseXMLElement reads tokens until the current element's end tag,
// recursing into children. Called once at the document root with start=nil.
func parseXMLElement(d *xml.Decoder, start *xml.StartElement) (*parsedElement, error) {
	var el *parsedElement
	if start != nil {
		el = &parsedElement{name: start.Name.Local, attrs: attrMap(start.Attr)}
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			if el == nil {
				return nil, fmt.Errorf("empty xml document")
			}
			return el, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			startCopy := t.Copy()
			child, err := parseXMLElement(d, &startCopy)
			if err != nil {
				return nil, err
			}
			if el == nil {
				el = child
				return el, nil
			}
			el.children = append(el.children, child)
		case xml.CharData:
			if el != nil {
				el.text += string(t)
			}
		case xml.EndElement:
			if el != nil {
				return el, nil
			}
		}
	}
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func trimText(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
