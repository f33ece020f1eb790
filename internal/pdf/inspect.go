package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount reads the page count of a generated PDF.
func PageCount(file string) (int, error) {
	return api.PageCountFile(file)
}
