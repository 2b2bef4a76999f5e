package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrDocumentNotFound is returned when a static document is missing.
var ErrDocumentNotFound = errors.New("knowledge: document not found")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Documents reads static documents (malware guide, presentation text) from a
// directory. Files are decoded as UTF-8, UTF-16 (with BOM), Windows-1252 and
// finally ISO-8859-1.
type Documents struct {
	dir string
}

// NewDocuments returns a reader rooted at dir.
func NewDocuments(dir string) *Documents {
	return &Documents{dir: dir}
}

// Dir returns the root directory.
func (d *Documents) Dir() string { return d.dir }

// ReadText returns the decoded content of name.
func (d *Documents) ReadText(name string) (string, error) {
	path := filepath.Join(d.dir, filepath.Base(name))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", name, ErrDocumentNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return DecodeText(data)
}

// PrettyJSON returns name re-indented with two spaces, keeping key order.
func (d *Documents) PrettyJSON(name string) (string, error) {
	text, err := d.ReadText(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	return buf.String(), nil
}

// DecodeText converts raw file bytes into a string using the first encoding
// that fits.
func DecodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data))
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data))
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out), nil
	}
	return decodeWith(charmap.ISO8859_1.NewDecoder().Bytes(data))
}

func decodeWith(out []byte, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}
