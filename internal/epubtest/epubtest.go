// Package epubtest builds in-memory EPUB containers for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"
)

// File is one archive entry.
type File struct {
	Name string
	Body string
}

// Mimetype is the stored mimetype entry every EPUB starts with.
var Mimetype = File{Name: "mimetype", Body: "application/epub+zip"}

// Container returns a META-INF/container.xml entry naming opfPath.
func Container(opfPath string) File {
	return File{
		Name: "META-INF/container.xml",
		Body: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opfPath),
	}
}

// Zip writes files, in order, into a zip archive. The mimetype entry is
// stored uncompressed; everything else is deflated.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Deflate
		if f.Name == Mimetype.Name {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method})
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := fw.Write([]byte(f.Body)); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// EPUB writes a container with the mimetype entry, a container.xml pointing
// at OEBPS/content.opf and the given files.
func EPUB(t testing.TB, files ...File) []byte {
	t.Helper()
	all := append([]File{Mimetype, Container("OEBPS/content.opf")}, files...)
	return Zip(t, all...)
}

// Chapter returns a minimal XHTML content document.
func Chapter(name, title, body string) File {
	return File{
		Name: name,
		Body: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>%s</body>
</html>`, title, body),
	}
}

// PNG is a valid 1x1 transparent PNG image.
const PNG = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89\x00\x00\x00\rIDATx\x9cc\x00\x01\x00\x00\x05\x00\x01\r\n-\xb4\x00\x00\x00\x00IEND\xaeB`\x82"

// JPEG is the leading bytes of a JPEG file, enough for type sniffing.
const JPEG = "\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00\xff\xd9"
