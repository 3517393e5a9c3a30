package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/askdoc/askdoc/internal/rag"
)

// writeTestFile writes content to name under a temp dir and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func Test_Loader_TextFileSingleDocument(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "facts.txt", "The reactor core melted down in 1986.")
	docs, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("want 1 document, got %d", len(docs))
	}
	if docs[0].Content != "The reactor core melted down in 1986." {
		t.Errorf("unexpected content: %q", docs[0].Content)
	}
	if docs[0].Page != 0 {
		t.Errorf("plain text must carry no page number, got %d", docs[0].Page)
	}
	if docs[0].Source != path {
		t.Errorf("want source %q, got %q", path, docs[0].Source)
	}
}

func Test_Loader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	if !errors.Is(err, rag.ErrDocumentNotFound) {
		t.Errorf("want ErrDocumentNotFound, got %v", err)
	}
}

func Test_Loader_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "notes.docx", "irrelevant")
	_, err := Load(path)
	if !errors.Is(err, rag.ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
}

func Test_Loader_ExtensionCaseInsensitive(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "FACTS.TXT", "content")
	docs, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("want 1 document, got %d", len(docs))
	}
}

func Test_Loader_CorruptPDFReportsCause(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "broken.pdf", "this is not a pdf")
	_, err := Load(path)
	if err == nil {
		t.Fatal("corrupt pdf accepted")
	}
	if errors.Is(err, rag.ErrDocumentNotFound) || errors.Is(err, rag.ErrUnsupportedFormat) {
		t.Errorf("corrupt pdf misclassified: %v", err)
	}
}

func Test_Loader_ForPathSelectsVariant(t *testing.T) {
	t.Parallel()

	if l, err := ForPath("a.txt"); err != nil {
		t.Errorf("txt: %v", err)
	} else if _, ok := l.(TextLoader); !ok {
		t.Errorf("txt: want TextLoader, got %T", l)
	}
	if l, err := ForPath("a.pdf"); err != nil {
		t.Errorf("pdf: %v", err)
	} else if _, ok := l.(PDFLoader); !ok {
		t.Errorf("pdf: want PDFLoader, got %T", l)
	}
	if _, err := ForPath("a.html"); !errors.Is(err, rag.ErrUnsupportedFormat) {
		t.Errorf("html: want ErrUnsupportedFormat, got %v", err)
	}
}
