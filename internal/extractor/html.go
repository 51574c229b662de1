package extractor

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// convertHTMLToMarkdown strips scripts/styles and converts structural HTML
// into Markdown via the html-to-markdown converter.
func convertHTMLToMarkdown(html string) (string, error) {
	return htmltomarkdown.ConvertString(html)
}
