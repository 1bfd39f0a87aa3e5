package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	ooxmlTypesPart   = "[Content_Types].xml"
	docxMainPartType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// docxToken matches either a text run or an explicit page break, in document order.
var docxToken = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|<w:br\s[^>]*w:type="page"[^>]*/>`)

type ooxmlTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// docxMainPart resolves the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	data, err := readZipFile(zr, ooxmlTypesPart)
	if err != nil {
		return docxDefaultPart
	}
	var ct ooxmlTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return docxDefaultPart
	}
	for _, o := range ct.Overrides {
		if o.ContentType == docxMainPartType && o.PartName != "" {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultPart
}

// extractDOCX returns the text of a .docx document, split into pages at explicit
// page breaks. Text runs are matched regardless of their attributes.
func extractDOCX(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	body, err := readZipFile(zr, docxMainPart(zr))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}

	var (
		pages []string
		runs  [][]string
	)
	for _, m := range docxToken.FindAllStringSubmatch(string(body), -1) {
		if strings.HasPrefix(m[0], "<w:br") {
			pages = append(pages, joinMatches(runs))
			runs = nil
			continue
		}
		runs = append(runs, m)
	}
	return append(pages, joinMatches(runs)), nil
}
