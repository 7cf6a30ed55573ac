package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

func contractBody(status string) map[string]any {
	return map[string]any{
		"client_name":      "Aliya Nurlanovna",
		"client_phone":     "+7 701 000 0000",
		"property_address": "Almaty, Abai 150",
		"property_type":    "apartment",
		"rental_amount":    "250000",
		"deposit_amount":   "250000",
		"start_date":       "2024-06-01",
		"end_date":         "2025-05-31",
		"status":           status,
	}
}

func createContract(t *testing.T, env *testEnv, status string) model.Contract {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/contracts", contractBody(status), &env.manager)
	expectStatus(t, w, http.StatusCreated)
	return decode[model.Contract](t, w)
}

func TestContractHandlerCreate(t *testing.T) {
	env := newTestEnv(t)

	c := createContract(t, env, "active")

	if c.ID == 0 {
		t.Fatal("Expected id to be assigned")
	}
	if !strings.HasPrefix(c.Number, "KZH-") || len(c.Number) != len("KZH-2024-06-ABCDEF") {
		t.Errorf("Unexpected contract number %q", c.Number)
	}
	if c.CreatedBy != env.manager.ID {
		t.Errorf("Expected created_by %d, got %d", env.manager.ID, c.CreatedBy)
	}
	if c.Status != model.StatusActive || c.EndDate.Format(model.DateLayout) != "2025-05-31" {
		t.Errorf("Unexpected contract: %+v", c)
	}

	notes, err := env.store.ListNotifications(context.Background(), service.NotificationQuery{Type: model.TagContractCreated})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("Expected a notice for each of the 3 active users, got %d", len(notes))
	}
	for _, n := range notes {
		if n.UserID == env.inactive.ID {
			t.Error("Inactive user must not be notified")
		}
		if n.RelatedContractID == nil || *n.RelatedContractID != c.ID || n.RelatedDocumentID != nil {
			t.Errorf("Unexpected references on %+v", n)
		}
		if !strings.Contains(n.Message, c.Number) {
			t.Errorf("Expected contract number in message %q", n.Message)
		}
	}
}

func TestContractHandlerCreateDefaultsToDraft(t *testing.T) {
	env := newTestEnv(t)

	if c := createContract(t, env, ""); c.Status != model.StatusDraft {
		t.Errorf("Expected draft status, got %q", c.Status)
	}
}

func TestContractHandlerCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing client", func(b map[string]any) { delete(b, "client_name") }},
		{"bad start date", func(b map[string]any) { b["start_date"] = "01.06.2024" }},
		{"ends before start", func(b map[string]any) { b["end_date"] = "2024-05-01" }},
		{"unknown status", func(b map[string]any) { b["status"] = "archived" }},
		{"negative rent", func(b map[string]any) { b["rental_amount"] = "-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := contractBody("active")
			tt.mutate(body)
			w := env.do(t, http.MethodPost, "/api/contracts", body, &env.user)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}

	contracts, _ := env.store.ListContracts(context.Background(), service.ContractQuery{})
	if len(contracts) != 0 || env.store.Count() != 0 {
		t.Errorf("Expected nothing written, got %d contracts and %d notifications", len(contracts), env.store.Count())
	}
}

func TestContractHandlerList(t *testing.T) {
	env := newTestEnv(t)
	createContract(t, env, "active")
	createContract(t, env, "draft")
	createContract(t, env, "active")

	tests := []struct {
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{"", http.StatusOK, 3},
		{"?status=active", http.StatusOK, 2},
		{"?status=draft", http.StatusOK, 1},
		{"?skip=1&limit=1", http.StatusOK, 1},
		{"?status=archived", http.StatusBadRequest, 0},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?skip=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/contracts"+tt.query, nil, &env.user)
			expectStatus(t, w, tt.expectedStatus)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			resp := decode[map[string][]model.Contract](t, w)
			if len(resp["contracts"]) != tt.expectedCount {
				t.Errorf("Expected %d contracts, got %d", tt.expectedCount, len(resp["contracts"]))
			}
		})
	}
}

func TestContractHandlerGet(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")

	w := env.do(t, http.MethodGet, "/api/contracts/"+strconv.FormatInt(c.ID, 10), nil, &env.user)
	expectStatus(t, w, http.StatusOK)
	if got := decode[model.Contract](t, w); got.Number != c.Number {
		t.Errorf("Expected %q, got %q", c.Number, got.Number)
	}

	w = env.do(t, http.MethodGet, "/api/contracts/9999", nil, &env.user)
	expectStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodGet, "/api/contracts/abc", nil, &env.user)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestContractHandlerUpdate(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")
	path := "/api/contracts/" + strconv.FormatInt(c.ID, 10)

	body := contractBody("signed")
	body["end_date"] = "2025-12-31"
	w := env.do(t, http.MethodPut, path, body, &env.user)
	expectStatus(t, w, http.StatusOK)

	got := decode[model.Contract](t, w)
	if got.Number != c.Number || got.CreatedBy != c.CreatedBy {
		t.Error("Number and creator must not change on update")
	}
	if got.Status != model.StatusSigned || got.EndDate.Format(model.DateLayout) != "2025-12-31" {
		t.Errorf("Update not applied: %+v", got)
	}

	body["end_date"] = "2020-01-01"
	w = env.do(t, http.MethodPut, path, body, &env.user)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPut, "/api/contracts/9999", contractBody("active"), &env.user)
	expectStatus(t, w, http.StatusNotFound)
}

func TestContractHandlerDelete(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")
	path := "/api/contracts/" + strconv.FormatInt(c.ID, 10)

	w := env.do(t, http.MethodDelete, path, nil, &env.user)
	expectStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodDelete, path, nil, &env.manager)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodDelete, path, nil, &env.admin)
	expectStatus(t, w, http.StatusNotFound)
}

func TestContractHandlerDownload(t *testing.T) {
	env := newTestEnv(t)
	c := createContract(t, env, "active")
	path := "/api/contracts/" + strconv.FormatInt(c.ID, 10) + "/download"

	w := env.do(t, http.MethodGet, path, nil, &env.user)
	expectStatus(t, w, http.StatusNotFound)

	c.FilePath = "contracts/2024/06/lease.pdf"
	if err := env.store.UpdateContract(context.Background(), &c); err != nil {
		t.Fatalf("update contract: %v", err)
	}

	w = env.do(t, http.MethodGet, path, nil, &env.user)
	expectStatus(t, w, http.StatusBadGateway)

	env.files.objects[c.FilePath] = []byte("%PDF-1.4")
	w = env.do(t, http.MethodGet, path, nil, &env.user)
	expectStatus(t, w, http.StatusOK)

	body := decode[map[string]string](t, w)
	if !strings.HasPrefix(body["url"], "https://files.example.com/contracts/2024/06/lease.pdf") {
		t.Errorf("Unexpected url %q", body["url"])
	}
	if body["filename"] != "lease.pdf" {
		t.Errorf("Expected filename lease.pdf, got %q", body["filename"])
	}

	w = env.do(t, http.MethodGet, "/api/contracts/9999/download", nil, &env.user)
	expectStatus(t, w, http.StatusNotFound)
}
