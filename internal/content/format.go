package content

import "strings"

// Format identifies a document container format. It doubles as the registry
// key for format handlers and as an export target name.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatPPTX     Format = "pptx"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// ParseFormat normalizes a user supplied format name. Common aliases and
// extensions are accepted ("txt", ".md", "spreadsheet").
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "txt", "text", "plain":
		return FormatText
	case "md", "markdown":
		return FormatMarkdown
	case "csv":
		return FormatCSV
	case "xlsx", "spreadsheet", "excel":
		return FormatXLSX
	case "pptx", "slides", "powerpoint":
		return FormatPPTX
	case "pdf":
		return FormatPDF
	case "json":
		return FormatJSON
	default:
		return Format(s)
	}
}

// String returns the format identifier.
func (f Format) String() string {
	return string(f)
}
