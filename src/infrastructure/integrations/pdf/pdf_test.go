package pdf_test

import (
	"bytes"
	"context"
	"testing"

	"pdfchat/src/infrastructure/integrations/pdf"
)

func TestExtractRejectsGarbage(t *testing.T) {
	data := []byte("this is not a pdf document at all")
	_, err := pdf.NewExtractor().Extract(context.Background(), "fake.pdf", bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Error("expected an error for non-PDF input")
	}
}
