// Package loader reads the configured source document from disk and produces
// the ordered [rag.SourceDocument] sequence the chunker consumes. Loaders are
// a small closed set selected by file extension: plain text (one document for
// the whole file) and PDF (one document per page, text content only). Any
// other extension fails with [rag.ErrUnsupportedFormat].
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/askdoc/askdoc/internal/rag"
)

// ForPath returns the Loader matching the extension of path.
// Returns rag.ErrUnsupportedFormat for anything outside the allow-list.
func ForPath(path string) (rag.Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return TextLoader{}, nil
	case ".pdf":
		return PDFLoader{}, nil
	default:
		return nil, fmt.Errorf("loader: %q: %w", filepath.Ext(path), rag.ErrUnsupportedFormat)
	}
}

// Load dispatches on the extension of path and loads the document.
func Load(path string) ([]rag.SourceDocument, error) {
	l, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return l.Load(path)
}

// TextLoader loads a UTF-8 plain-text file as a single SourceDocument with
// no page number.
type TextLoader struct{}

// Load reads the whole file at path into one SourceDocument.
func (TextLoader) Load(path string) ([]rag.SourceDocument, error) {
	if err := statSource(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}

	return []rag.SourceDocument{{
		Content: string(data),
		Source:  path,
	}}, nil
}

// PDFLoader extracts plain text from a PDF, producing one SourceDocument per
// page tagged with its 1-based page number. Layout and images are discarded;
// pages whose extracted text is empty are skipped.
type PDFLoader struct{}

// Load opens the PDF at path and extracts the text of each page.
// Corrupted or unreadable files fail with an error wrapping the parser cause.
func (PDFLoader) Load(path string) ([]rag.SourceDocument, error) {
	if err := statSource(path); err != nil {
		return nil, err
	}

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var docs []rag.SourceDocument
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("loader: extract pdf %s page %d: %w", path, i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, rag.SourceDocument{
			Content: text,
			Source:  path,
			Page:    i,
		})
	}

	return docs, nil
}

// statSource verifies the source file exists before attempting a parse so
// missing files are reported as rag.ErrDocumentNotFound rather than a
// format-specific open error.
func statSource(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("loader: %s: %w", path, rag.ErrDocumentNotFound)
		}
		return fmt.Errorf("loader: stat %s: %w", path, err)
	}
	return nil
}
