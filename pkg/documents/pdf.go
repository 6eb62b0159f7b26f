package documents

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF-")

func init() {
	// Keep pdfcpu from creating its own directory under the user config dir.
	api.DisableConfigDir()
}

// PDFDocument keeps the file open for the lifetime of the document, so a rename of the
// underlying file does not invalidate the handle.
type PDFDocument struct {
	file  *os.File
	pages int
	title string
}

// PDFOpener opens files that carry the PDF header.
type PDFOpener struct{}

// Open opens path and reads its page tree and document info.
func (PDFOpener) Open(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, pdfMagic) {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", path, ErrNotDocument)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadAndValidate(f, conf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &PDFDocument{
		file:  f,
		pages: ctx.PageCount,
		title: strings.TrimSpace(ctx.Title),
	}, nil
}

// PageCount returns the number of pages in the page tree.
func (d *PDFDocument) PageCount() int {
	return d.pages
}

// Title returns the document info title, or "".
func (d *PDFDocument) Title() string {
	return d.title
}

// Close releases the file handle.
func (d *PDFDocument) Close() error {
	return d.file.Close()
}
