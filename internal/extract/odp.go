package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
)

// odfContentPath is the main content part of OpenDocument packages.
const odfContentPath = "content.xml"

var (
	// odfText matches paragraphs, headings and spans, with optional attributes.
	odfText = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)
	odpPage = regexp.MustCompile(`(?s)<draw:page[ >].*?</draw:page>`)
)

// extractODP returns one page per <draw:page> of an OpenDocument presentation.
func extractODP(content []byte) ([]string, error) {
	return extractODF(content, "ODP", odpPage)
}

// extractODF reads content.xml from an OpenDocument package and returns the text
// of each section matched by section. A document without such sections is one page.
func extractODF(content []byte, kind string, section *regexp.Regexp) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	data, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", kind, err)
	}
	s := string(data)
	sections := section.FindAllString(s, -1)
	if len(sections) == 0 {
		sections = []string{s}
	}
	pages := make([]string, len(sections))
	for i, sec := range sections {
		pages[i] = joinMatches(odfText.FindAllStringSubmatch(sec, -1))
	}
	return pages, nil
}
