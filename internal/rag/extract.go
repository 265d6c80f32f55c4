package rag

import (
	"strings"
	"unicode/utf8"
)

// MIME types with dedicated extraction.
const (
	MimePDF = "application/pdf"
)

// Extract returns the plain text of a document. PDFs go through ExtractPDF;
// everything else is read as UTF-8 when valid and otherwise has no text.
func Extract(mime string, data []byte) string {
	if strings.HasPrefix(mime, MimePDF) {
		return ExtractPDF(data)
	}
	if strings.HasPrefix(mime, "text/") || utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "")
	}
	return ""
}

// ExtractPDF pulls the string operands of Tj operators out of a simple,
// uncompressed PDF content stream. It is not a PDF parser.
func ExtractPDF(data []byte) string {
	content := strings.ToValidUTF8(string(data), "�")

	parts := strings.Split(content, "Tj")
	// the final segment is not followed by a Tj operator
	parts = parts[:len(parts)-1]

	var b strings.Builder
	for _, part := range parts {
		open := strings.LastIndexByte(part, '(')
		if open < 0 {
			continue
		}
		rest := part[open+1:]
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			continue
		}
		text := strings.TrimSpace(rest[:end])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}
