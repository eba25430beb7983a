package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/logging"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/pkg/oss"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
	"github.com/qs3c/journal_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore 内存对象存储
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStore) Put(key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (s *memStore) Size(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return 0, oss.ErrObjectNotFound
	}
	return int64(len(data)), nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type testContext struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Svc    *service.Services
	Store  *memStore
	Upload *service.UploadService
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Upload.MaxSize = 5 * 1024 * 1024
	cfg.Upload.AllowedExtensions = []string{".jpg", ".png", ".m4a"}

	log := logging.Discard()
	svc := service.NewServices(db, cfg, nil, metrics.NewCollector(prometheus.NewRegistry()), log)
	store := &memStore{objects: make(map[string][]byte)}

	return &testContext{
		DB:     db,
		Cfg:    cfg,
		Svc:    svc,
		Store:  store,
		Upload: service.NewUploadService(store, svc.Ledger, cfg, log),
	}
}

// newUser 当前账单周期内的 free 用户
func (tc *testContext) newUser(t *testing.T, opts ...func(*model.User)) *model.User {
	t.Helper()
	return testutil.TestUser(t, tc.DB, append([]func(*model.User){testutil.WithCurrentCycle()}, opts...)...)
}

func (tc *testContext) reload(t *testing.T, userID int64) *model.User {
	t.Helper()
	var user model.User
	require.NoError(t, tc.DB.First(&user, userID).Error)
	return &user
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// decodeData 解析响应并把 data 解到 out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) int {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && resp.Code == response.CodeSuccess {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return resp.Code
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
