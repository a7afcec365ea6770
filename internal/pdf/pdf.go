// Package pdf inspects uploaded documents before they are stored.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrInvalid = errors.New("not a readable PDF document")

// CharsPerPage is the page size used to count pages of text documents.
const CharsPerPage = 3000

func init() {
	// Keep pdfcpu from creating a configuration directory in $HOME.
	model.ConfigPath = "disable"
}

// PageCount returns the number of pages of a PDF held in memory.
func PageCount(data []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, ErrInvalid
	}
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if n <= 0 {
		return 0, ErrInvalid
	}
	return n, nil
}

// TextPageCount is ceil(chars / CharsPerPage), at least 1.
func TextPageCount(text string) int {
	n := utf8.RuneCountInString(text)
	pages := (n + CharsPerPage - 1) / CharsPerPage
	if pages < 1 {
		return 1
	}
	return pages
}
