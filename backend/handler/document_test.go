package handler

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadDocument(t *testing.T, env *testEnv, u model.User, fields map[string]string) model.Document {
	t.Helper()
	w := env.send(t, uploadRequest(t, "Lease Scan.PDF", pdfBytes, fields), &u)
	expectStatus(t, w, http.StatusCreated)
	return decode[model.Document](t, w)
}

func TestDocumentHandlerUpload(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")

	doc := uploadDocument(t, env, env.user, map[string]string{
		"title":       "Tenant passport",
		"contract_id": strconv.FormatInt(c.ID, 10),
		"tags":        "passport, id ,",
		"expiry_date": "2024-07-01",
	})

	if doc.Title != "Tenant passport" || doc.UploadedBy != env.user.ID {
		t.Errorf("Unexpected document: %+v", doc)
	}
	if doc.ContractID == nil || *doc.ContractID != c.ID {
		t.Errorf("Expected contract %d, got %v", c.ID, doc.ContractID)
	}
	if strings.Join(doc.Tags, "|") != "passport|id" {
		t.Errorf("Unexpected tags %v", doc.Tags)
	}
	if doc.ExpiryDate == nil || doc.ExpiryDate.Format(model.DateLayout) != "2024-07-01" {
		t.Errorf("Unexpected expiry %v", doc.ExpiryDate)
	}
	if doc.FileType != "application/pdf" || doc.FileSize != int64(len(pdfBytes)) {
		t.Errorf("Unexpected file metadata %q/%d", doc.FileType, doc.FileSize)
	}
	if !strings.HasPrefix(doc.ObjectName, "documents/") || !strings.HasSuffix(doc.ObjectName, ".pdf") {
		t.Errorf("Unexpected object name %q", doc.ObjectName)
	}
	if !env.files.has(doc.ObjectName) {
		t.Error("Expected the file to be stored")
	}
}

func TestDocumentHandlerUploadDefaults(t *testing.T) {
	env := newTestEnv(t)

	doc := uploadDocument(t, env, env.user, nil)

	if doc.Title != "Lease Scan.PDF" {
		t.Errorf("Expected filename as title, got %q", doc.Title)
	}
	if doc.ExpiryDate != nil || doc.ContractID != nil || len(doc.Tags) != 0 {
		t.Errorf("Expected no optional fields, got %+v", doc)
	}
}

func TestDocumentHandlerUploadRejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name           string
		filename       string
		content        []byte
		fields         map[string]string
		expectedStatus int
	}{
		{"disallowed extension", "run.exe", []byte("MZ"), nil, http.StatusBadRequest},
		{"bad expiry", "a.pdf", pdfBytes, map[string]string{"expiry_date": "tomorrow"}, http.StatusBadRequest},
		{"bad contract id", "a.pdf", pdfBytes, map[string]string{"contract_id": "x"}, http.StatusBadRequest},
		{"unknown contract", "a.pdf", pdfBytes, map[string]string{"contract_id": "9999"}, http.StatusNotFound},
		{"too large", "big.pdf", bytes.Repeat([]byte("a"), 1<<20+1), nil, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.send(t, uploadRequest(t, tt.filename, tt.content, tt.fields), &env.user)
			expectStatus(t, w, tt.expectedStatus)
		})
	}

	if len(env.files.objects) != 0 {
		t.Errorf("Expected no stored objects, got %d", len(env.files.objects))
	}
}

func TestDocumentHandlerUploadStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.files.failPut = errors.New("minio down")

	w := env.send(t, uploadRequest(t, "a.pdf", pdfBytes, nil), &env.user)
	expectStatus(t, w, http.StatusBadGateway)
}

func TestDocumentHandlerList(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")
	uploadDocument(t, env, env.user, map[string]string{"title": "Passport scan", "tags": "passport,id"})
	uploadDocument(t, env, env.user, map[string]string{"title": "Utility bill", "tags": "bills", "contract_id": strconv.FormatInt(c.ID, 10)})
	uploadDocument(t, env, env.user, map[string]string{"title": "Insurance", "tags": "ID"})

	tests := []struct {
		query         string
		expectedCount int
	}{
		{"", 3},
		{"?search=PASS", 1},
		{"?tags=id", 2},
		{"?tags=passport,id", 1},
		{"?contract_id=" + strconv.FormatInt(c.ID, 10), 1},
		{"?limit=2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/documents"+tt.query, nil, &env.user)
			expectStatus(t, w, http.StatusOK)
			resp := decode[map[string][]model.Document](t, w)
			if len(resp["documents"]) != tt.expectedCount {
				t.Errorf("Expected %d documents, got %d", tt.expectedCount, len(resp["documents"]))
			}
		})
	}

	w := env.do(t, http.MethodGet, "/api/documents?contract_id=abc", nil, &env.user)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestDocumentHandlerUpdate(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadDocument(t, env, env.user, map[string]string{"expiry_date": "2024-07-01", "tags": "old"})
	path := "/api/documents/" + strconv.FormatInt(doc.ID, 10)

	w := env.do(t, http.MethodPut, path, map[string]any{"title": "Hijack"}, &env.manager)
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodPut, path, map[string]any{
		"title": "Renamed",
		"tags":  []string{"new", " "},
	}, &env.user)
	expectStatus(t, w, http.StatusOK)
	got := decode[model.Document](t, w)
	if got.Title != "Renamed" || strings.Join(got.Tags, ",") != "new" {
		t.Errorf("Update not applied: %+v", got)
	}
	if got.ExpiryDate == nil {
		t.Error("Absent expiry_date must leave the expiry unchanged")
	}

	w = env.do(t, http.MethodPut, path, map[string]any{"expiry_date": ""}, &env.admin)
	expectStatus(t, w, http.StatusOK)
	if got := decode[model.Document](t, w); got.ExpiryDate != nil {
		t.Errorf("Expected expiry cleared, got %v", got.ExpiryDate)
	}

	w = env.do(t, http.MethodPut, path, map[string]any{"title": "  "}, &env.user)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPut, path, map[string]any{"contract_id": 9999}, &env.user)
	expectStatus(t, w, http.StatusNotFound)
}

func TestDocumentHandlerDownloadAndDelete(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadDocument(t, env, env.user, nil)
	path := "/api/documents/" + strconv.FormatInt(doc.ID, 10)

	w := env.do(t, http.MethodGet, path+"/download", nil, &env.manager)
	expectStatus(t, w, http.StatusOK)
	resp := decode[map[string]string](t, w)
	if !strings.Contains(resp["url"], doc.ObjectName) {
		t.Errorf("Expected presigned url for %q, got %q", doc.ObjectName, resp["url"])
	}

	w = env.do(t, http.MethodGet, path, nil, &env.manager)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodDelete, path, nil, &env.manager)
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodDelete, path, nil, &env.user)
	expectStatus(t, w, http.StatusOK)
	if env.files.has(doc.ObjectName) {
		t.Error("Expected the stored object to be removed")
	}

	w = env.do(t, http.MethodGet, path+"/download", nil, &env.user)
	expectStatus(t, w, http.StatusNotFound)
}
