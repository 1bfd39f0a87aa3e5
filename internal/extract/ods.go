package extract

import "regexp"

var odsTable = regexp.MustCompile(`(?s)<table:table[ >].*?</table:table>`)

// extractODS returns one page per sheet of an OpenDocument spreadsheet.
func extractODS(content []byte) ([]string, error) {
	return extractODF(content, "ODS", odsTable)
}
