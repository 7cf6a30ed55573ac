package service

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
)

func TestNewMinioService(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test",
		UseSSL:    false,
	}

	svc, err := NewMinioService(cfg)
	if err != nil {
		t.Fatalf("NewMinioService failed: %v", err)
	}
	if svc == nil {
		t.Fatal("Expected non-nil service")
	}
}

func TestMinioServiceGetPublicURL(t *testing.T) {
	tests := []struct {
		name       string
		useSSL     bool
		endpoint   string
		bucket     string
		objectName string
		expected   string
	}{
		{
			name:       "http url",
			useSSL:     false,
			endpoint:   "localhost:9000",
			bucket:     "documents",
			objectName: "documents/2024/06/abc.pdf",
			expected:   "http://localhost:9000/documents/documents/2024/06/abc.pdf",
		},
		{
			name:       "https url",
			useSSL:     true,
			endpoint:   "minio.example.com",
			bucket:     "contracts",
			objectName: "contracts/KZH-2024-06-ABCDEF.pdf",
			expected:   "https://minio.example.com/contracts/contracts/KZH-2024-06-ABCDEF.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MinioService{
				bucket: tt.bucket,
				config: &config.MinioConfig{
					Endpoint: tt.endpoint,
					UseSSL:   tt.useSSL,
				},
			}

			result := svc.GetPublicURL(tt.objectName)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

// Presigning is computed locally because the region is fixed.
func TestMinioServiceGetPresignedURL(t *testing.T) {
	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:   "localhost:9000",
		AccessKey:  "test",
		SecretKey:  "test-secret",
		Bucket:     "documents",
		ExpireDays: 2,
	})
	if err != nil {
		t.Fatalf("NewMinioService failed: %v", err)
	}

	raw, err := svc.GetPresignedURL(context.Background(), "documents/2024/06/lease.pdf")
	if err != nil {
		t.Fatalf("GetPresignedURL failed: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Invalid URL %q: %v", raw, err)
	}
	if u.Host != "localhost:9000" {
		t.Errorf("Expected host localhost:9000, got %s", u.Host)
	}
	if !strings.HasSuffix(u.Path, "/documents/documents/2024/06/lease.pdf") {
		t.Errorf("Unexpected path %s", u.Path)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "172800" {
		t.Errorf("Expected expiry of 172800 seconds, got %s", got)
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Error("Expected a signature")
	}
}

func TestMinioServiceUploadWithCancelledContext(t *testing.T) {
	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test",
	})
	if err != nil {
		t.Skip("Could not create MinIO service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.UploadFile(ctx, "test", strings.NewReader("test"), 4, "text/plain"); err == nil {
		t.Error("Expected upload with cancelled context to fail")
	}
}

func TestDocumentObjectName(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^documents/2024/06/[0-9a-f-]{36}\.pdf$`)

	name := DocumentObjectName("documents", "Lease Scan.PDF", now)
	if !pattern.MatchString(name) {
		t.Errorf("Unexpected object name %s", name)
	}
	if other := DocumentObjectName("documents", "Lease Scan.PDF", now); other == name {
		t.Error("Expected unique object names")
	}
	if name := DocumentObjectName("documents", "noext", now); strings.Contains(name[len("documents/2024/06/"):], ".") {
		t.Errorf("Expected no extension, got %s", name)
	}
}
