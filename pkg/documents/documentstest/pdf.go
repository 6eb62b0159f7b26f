// Package documentstest writes small, well-formed PDF files for tests.
package documentstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const pageObject = "<< /Type /Page /Parent 2 0 R >>"

// WritePDF writes a PDF with a classic cross-reference table. title is a raw PDF string
// token such as "(Notes)" or "<FEFF0048>"; an empty title omits the info dictionary.
func WritePDF(t testing.TB, path string, pages int, title string) string {
	t.Helper()

	objs := treeObjects(pages)
	info := 0
	if title != "" {
		objs = append(objs, "<< /Title "+title+" >>")
		info = len(objs)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, infoRef(info), xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// WriteCompressedPDF writes a PDF 1.5 file whose catalog and page tree live in an object
// stream indexed by a cross-reference stream.
func WriteCompressedPDF(t testing.TB, path string, pages int, title string) string {
	t.Helper()

	inner := treeObjects(pages)
	var index, body bytes.Buffer
	for i, obj := range inner {
		fmt.Fprintf(&index, "%d %d ", i+1, body.Len())
		body.WriteString(obj)
		body.WriteString("\n")
	}
	content := index.String() + body.String()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := make(map[int]int)
	next := len(inner) + 1

	info := 0
	if title != "" {
		info = next
		next++
		offsets[info] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Title %s >>\nendobj\n", info, title)
	}

	objStm := next
	next++
	offsets[objStm] = buf.Len()
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		objStm, len(inner), index.Len(), len(content), content)

	xrefNum := next
	size := next + 1
	offsets[xrefNum] = buf.Len()

	var rows bytes.Buffer
	for num := 0; num < size; num++ {
		switch {
		case num == 0:
			xrefRow(&rows, 0, 0, 0xffff)
		case num <= len(inner):
			xrefRow(&rows, 2, uint32(objStm), uint16(num-1))
		default:
			xrefRow(&rows, 1, uint32(offsets[num]), 0)
		}
	}
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R%s /Length %d >>\nstream\n",
		xrefNum, size, infoRef(info), rows.Len())
	buf.Write(rows.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", offsets[xrefNum])

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// treeObjects returns the catalog (1), the page tree root (2) and its pages (3..).
func treeObjects(pages int) []string {
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>",
			strings.Join(kids, " "), pages),
	}
	for i := 0; i < pages; i++ {
		objs = append(objs, pageObject)
	}
	return objs
}

func infoRef(num int) string {
	if num == 0 {
		return ""
	}
	return fmt.Sprintf(" /Info %d 0 R", num)
}

func xrefRow(w *bytes.Buffer, kind byte, field2 uint32, field3 uint16) {
	w.WriteByte(kind)
	binary.Write(w, binary.BigEndian, field2)
	binary.Write(w, binary.BigEndian, field3)
}
