package minioctrl_test

import (
	"testing"

	"pdfchat/src/storage/minioctrl"
)

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{in: "corpus", bucket: "corpus"},
		{in: "corpus/reports/2024", bucket: "corpus", prefix: "reports/2024"},
		{in: "s3://corpus/reports/", bucket: "corpus", prefix: "reports"},
		{in: "", bucket: ""},
	}
	for _, tt := range tests {
		bucket, prefix := minioctrl.SplitLocation(tt.in)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("SplitLocation(%q) = %q, %q; want %q, %q", tt.in, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{prefix: "", name: "report.pdf", want: "report.pdf"},
		{prefix: "uploads/", name: "../../report.pdf", want: "uploads/report.pdf"},
		{prefix: "uploads", name: `C:\tmp\report.PDF`, want: "uploads/report.PDF"},
	}
	for _, tt := range tests {
		if got := minioctrl.ObjectKey(tt.prefix, tt.name); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
	if !minioctrl.IsPDFKey("a/b.PDF") || minioctrl.IsPDFKey("a/b.txt") {
		t.Error("IsPDFKey misclassifies keys")
	}
}

func TestNewBucketSourceRejectsEmpty(t *testing.T) {
	svc, err := minioctrl.NewMinioService("localhost:9000", "key", "secret", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NewBucketSource(""); err == nil {
		t.Error("expected error for empty location")
	}
	src, err := svc.NewBucketSource("corpus/pdfs")
	if err != nil || src.Location() != "s3://corpus/pdfs" {
		t.Errorf("NewBucketSource() = %v, %v", src, err)
	}
}
