package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	ExtTXT  = ".txt"
	ExtPDF  = ".pdf"
	ExtDOCX = ".docx"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(content []byte, filename string) (string, error)
}

type fileExtractor struct{}

func New() Extractor {
	return fileExtractor{}
}

func (fileExtractor) Extract(content []byte, filename string) (string, error) {
	return Extract(content, filename)
}

// Extract dispatches on the lower-cased extension of filename.
func Extract(content []byte, filename string) (string, error) {
	ext := Extension(filename)

	switch ext {
	case ExtTXT:
		return decodeText(content, filename)
	case ExtPDF:
		if err := ValidateMagicBytes(content, filename); err != nil {
			return "", err
		}
		return extractPDF(content, filename)
	case ExtDOCX:
		if err := ValidateMagicBytes(content, filename); err != nil {
			return "", err
		}
		return extractDOCX(content, filename)
	default:
		return "", unsupported(filename, ext)
	}
}

func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func Supported(filename string) bool {
	switch Extension(filename) {
	case ExtTXT, ExtPDF, ExtDOCX:
		return true
	}
	return false
}

// ValidateMagicBytes rejects pdf and docx payloads whose leading bytes do not
// match their extension. Plain text has no signature.
func ValidateMagicBytes(content []byte, filename string) error {
	switch Extension(filename) {
	case ExtPDF:
		if !bytes.HasPrefix(content, []byte("%PDF-")) {
			return parseFailed(filename, errors.New("missing %PDF- signature"))
		}
	case ExtDOCX:
		if !bytes.HasPrefix(content, []byte("PK\x03\x04")) {
			return parseFailed(filename, errors.New("missing zip signature"))
		}
	case ExtTXT:
	default:
		return unsupported(filename, Extension(filename))
	}
	return nil
}

var textFallbacks = []struct {
	name string
	enc  encoding.Encoding
}{
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

func decodeText(content []byte, filename string) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return string(content), nil
	}

	var errs []error
	for _, fb := range textFallbacks {
		out, err := fb.enc.NewDecoder().Bytes(content)
		if err == nil {
			return string(out), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", fb.name, err))
	}

	return "", parseFailed(filename, errors.Join(errs...))
}

func extractPDF(content []byte, filename string) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = parseFailed(filename, fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", parseFailed(filename, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if !p.V.IsNull() {
			pageText, pageErr := p.GetPlainText(nil)
			if pageErr != nil {
				return "", parseFailed(filename, fmt.Errorf("page %d: %w", i, pageErr))
			}
			b.WriteString(pageText)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}

func extractDOCX(content []byte, filename string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", parseFailed(filename, fmt.Errorf("open docx zip: %w", err))
	}

	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return "", parseFailed(filename, fmt.Errorf("open document.xml: %w", err))
			}
			break
		}
	}
	if body == nil {
		return "", parseFailed(filename, errors.New("word/document.xml not found"))
	}
	defer body.Close()

	text, err := docxParagraphs(body)
	if err != nil {
		return "", parseFailed(filename, err)
	}
	return text, nil
}

// docxParagraphs writes each w:p as one line. Tabs and breaks inside runs
// are kept as \t and \n; w:tab under paragraph properties is a tab stop
// and is ignored.
func docxParagraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var out, para strings.Builder
	inText, inRun := false, false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				out.WriteString(para.String())
				out.WriteByte('\n')
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	return strings.TrimSpace(out.String()), nil
}
