package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"prepkitty/internal/auth"
	"prepkitty/internal/database"
	"prepkitty/internal/practice"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := database.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newUnreachableRedis 返回一个连接必然失败的客户端，覆盖 Redis 不可用时的降级路径。
func newUnreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newMiniRedis 启动进程内 Redis，测试结束时自动关闭。
func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	svc, err := auth.NewAuthService(privatePEM, publicPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func seedUser(t *testing.T, db *gorm.DB, email string, verified bool) database.User {
	t.Helper()
	hashed, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := database.User{Email: email, PasswordHash: hashed}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedProfile(t *testing.T, db *gorm.DB, userID uint, jobTitle string) database.PracticeProfile {
	t.Helper()
	profile := database.PracticeProfile{
		UserID:            userID,
		JobTitle:          jobTitle,
		Skills:            "Go",
		EmploymentHistory: []byte(`[{"role":"Engineer","startDate":"2020","endDate":"2023"}]`),
		Projects:          []byte("[]"),
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

// newContext 构造一个已登录用户的请求上下文；userID 为 0 时不注入身份。
func newContext(method, target string, body any, userID uint) (*gin.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c, w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-" + task.Type(), Type: task.Type()}, nil
}

type fakeCVStore struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeCVStore() *fakeCVStore {
	return &fakeCVStore{uploaded: map[string][]byte{}}
}

func (s *fakeCVStore) UploadFile(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) (string, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectKey] = b
	return "etag", nil
}

func (s *fakeCVStore) StatObject(_ context.Context, objectKey string) (bool, error) {
	_, ok := s.uploaded[objectKey]
	return ok, nil
}

func (s *fakeCVStore) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration, filename string) (string, error) {
	return "https://example.invalid/" + objectKey + "?filename=" + filename, nil
}

func (s *fakeCVStore) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]string
	nextLock int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string][]byte{}, locks: map[string]string{}}
}

func (m *memorySessions) Save(_ context.Context, s *practice.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	return nil
}

func (m *memorySessions) Load(_ context.Context, id string) (*practice.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s practice.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memorySessions) Lock(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return "", false, nil
	}
	m.nextLock++
	token := "lock-" + strconv.Itoa(m.nextLock)
	m.locks[id] = token
	return token, true, nil
}

func (m *memorySessions) Unlock(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == token {
		delete(m.locks, id)
	}
	return nil
}

type stubGenerator struct {
	replies []string
	err     error
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
