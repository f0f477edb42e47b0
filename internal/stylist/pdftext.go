package stylist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// PDFText extracts the plain text of a PDF into a .txt file. Inputs that are
// not PDFs yield ErrUnknownEncoding.
type PDFText struct{}

// Make writes the extracted text next to the style's other outputs.
func (PDFText) Make(_ context.Context, in Input) (string, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fmt.Errorf("%s: %w", in.Path, ErrUnknownEncoding)
	}
	text, err := ExtractText(data)
	if err != nil {
		return "", err
	}
	dst := in.Output("txt")
	if err := os.WriteFile(dst, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write text: %w", err)
	}
	return dst, nil
}

// ExtractText reads PDF bytes and returns the text of every page, one page per
// line block.
func ExtractText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
