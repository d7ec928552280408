package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"prepkitty/internal/database"
	"prepkitty/internal/errcode"
	"prepkitty/internal/tasks"
)

type fakeStore struct {
	uploaded map[string][]byte
	deleted  []string
	err      error
}

func (s *fakeStore) UploadFile(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, _ := io.ReadAll(reader)
	s.uploaded[objectKey] = b
	return "etag", nil
}

func (s *fakeStore) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	return nil
}

type fakeRenderer struct {
	html string
	err  error
}

func (r *fakeRenderer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type published struct {
	channel string
	msg     NotifyMessage
}

type fakePublisher struct {
	messages []published
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	var msg NotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	p.messages = append(p.messages, published{channel: channel, msg: msg})
	return redis.NewIntCmd(ctx)
}

type fakeSender struct {
	to, name, token string
	err             error
}

func (s *fakeSender) SendVerification(_ context.Context, to, name, token string) error {
	s.to, s.name, s.token = to, name, token
	return s.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func renderTask(t *testing.T, userID uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCVRenderTask(userID, "corr-1")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestCVRenderHandlerUploadsAndNotifies(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "jane@example.com", Name: "Jane Doe"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	profile := database.PracticeProfile{
		UserID:            user.ID,
		JobTitle:          "Backend Engineer",
		EmploymentHistory: datatypes.JSON(`[{"role":"Engineer","startDate":"2020","endDate":"Present"}]`),
		CVObjectKey:       "generated-cvs/1/old.pdf",
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}

	store := &fakeStore{uploaded: map[string][]byte{}}
	renderer := &fakeRenderer{}
	pub := &fakePublisher{}
	h := NewCVRenderHandler(db, store, renderer, pub, slog.Default())

	if err := h.ProcessTask(context.Background(), renderTask(t, user.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if !strings.Contains(renderer.html, "Jane Doe") || !strings.Contains(renderer.html, "Engineer") {
		t.Fatal("renderer should receive the cv html")
	}

	var reloaded database.PracticeProfile
	if err := db.First(&reloaded, profile.ID).Error; err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if _, ok := store.uploaded[reloaded.CVObjectKey]; !ok {
		t.Fatalf("profile key %q was not uploaded", reloaded.CVObjectKey)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "generated-cvs/1/old.pdf" {
		t.Fatalf("previous cv should be deleted, got %v", store.deleted)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(pub.messages))
	}
	got := pub.messages[0]
	if got.channel != tasks.NotifyChannel(user.ID) || got.msg.Status != StatusCompleted || got.msg.ObjectKey != reloaded.CVObjectKey {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestCVRenderHandlerMissingProfileSkipsRetry(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "solo@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	pub := &fakePublisher{}
	h := NewCVRenderHandler(db, &fakeStore{uploaded: map[string][]byte{}}, &fakeRenderer{}, pub, slog.Default())

	err := h.ProcessTask(context.Background(), renderTask(t, user.ID))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(pub.messages) != 1 || pub.messages[0].msg.ErrorCode != errcode.ProfileMissing {
		t.Fatalf("expected profile missing notification, got %+v", pub.messages)
	}
}

func TestCVRenderHandlerRenderFailureIsRetried(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "retry@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Create(&database.PracticeProfile{UserID: user.ID}).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}

	pub := &fakePublisher{}
	h := NewCVRenderHandler(db, &fakeStore{uploaded: map[string][]byte{}}, &fakeRenderer{err: errors.New("chromium crashed")}, pub, slog.Default())

	err := h.ProcessTask(context.Background(), renderTask(t, user.ID))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatal("non-final attempts must not notify")
	}
}

func TestCVRenderHandlerUnknownUser(t *testing.T) {
	db := newTestDB(t)
	h := NewCVRenderHandler(db, &fakeStore{uploaded: map[string][]byte{}}, &fakeRenderer{}, &fakePublisher{}, slog.Default())
	if err := h.ProcessTask(context.Background(), renderTask(t, 999)); err != nil {
		t.Fatalf("unknown user should be skipped, got %v", err)
	}
}

func TestVerificationEmailHandler(t *testing.T) {
	sender := &fakeSender{}
	h := NewVerificationEmailHandler(sender, slog.Default())
	task, err := tasks.NewVerificationEmailTask(tasks.VerificationEmailPayload{Email: "jane@example.com", Name: "Jane", Token: "tok"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sender.to != "jane@example.com" || sender.token != "tok" {
		t.Fatalf("unexpected send %+v", sender)
	}

	sender.err = errors.New("smtp down")
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected send error to propagate")
	}

	if err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeVerificationEmail, []byte("{"))); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad payload, got %v", err)
	}
}
