package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/middleware"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/scheduler"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)

type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeFiles) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeFiles) UploadFile(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	if f.failPut != nil {
		return f.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectName] = data
	f.types[objectName] = contentType
	return nil
}

func (f *fakeFiles) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[objectName]; !ok {
		return "", errors.New("no such object")
	}
	return "https://files.example.com/" + objectName + "?sig=1", nil
}

func (f *fakeFiles) DeleteFile(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

func (f *fakeFiles) has(objectName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectName]
	return ok
}

type fakeRunner struct {
	report scheduler.Report
	err    error
	got    []scheduler.Pipeline
	status scheduler.Status
}

func (r *fakeRunner) Tick(ctx context.Context, pipelines ...scheduler.Pipeline) (scheduler.Report, error) {
	r.got = append(r.got, pipelines...)
	return r.report, r.err
}

func (r *fakeRunner) Status() scheduler.Status { return r.status }

type testEnv struct {
	cfg      *config.Config
	store    *service.MemoryStore
	files    *fakeFiles
	runner   *fakeRunner
	notifier *service.NotificationService
	router   *gin.Engine

	admin    model.User
	manager  model.User
	user     model.User
	inactive model.User
}

const testPassword = "secret-pass"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := func() time.Time { return testNow }
	opts := service.DefaultOptions()
	opts.Clock = clock

	e := &testEnv{
		cfg: &config.Config{
			Server: config.ServerConfig{RateLimit: 6000, RateLimitBurst: 1000, MaxUploadSizeMB: 1},
			Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 1},
		},
		store:    service.NewMemoryStore(clock),
		files:    newFakeFiles(),
		runner:   &fakeRunner{},
		notifier: service.NewNotificationService(opts),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	mk := func(name, role string, active bool) model.User {
		u := model.User{Username: name, Role: role, Active: active, PasswordHash: string(hash)}
		if err := e.store.CreateUser(context.Background(), &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u
	}
	e.admin = mk("admin", model.RoleAdmin, true)
	e.manager = mk("dana", model.RoleManager, true)
	e.user = mk("yerlan", model.RoleUser, true)
	e.inactive = mk("former", model.RoleUser, false)

	e.router = NewRouter(Deps{
		Config:   e.cfg,
		Store:    e.store,
		Files:    e.files,
		Notifier: e.notifier,
		Runner:   e.runner,
	})
	return e
}

func (e *testEnv) token(t *testing.T, u model.User) string {
	t.Helper()
	token, _, err := middleware.GenerateToken(&u, &e.cfg.Auth)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// do sends a JSON request as u; a nil user sends no Authorization header.
func (e *testEnv) do(t *testing.T, method, path string, body any, u *model.User) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(t, req, u)
}

func (e *testEnv) send(t *testing.T, req *http.Request, u *model.User) *httptest.ResponseRecorder {
	t.Helper()
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *u))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
