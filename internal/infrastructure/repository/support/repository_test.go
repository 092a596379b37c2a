package support

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/database/entities"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&entities.Conversation{}, &entities.Message{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createTestConversation(t *testing.T, repo *ConversationRepository, publicID, userID string) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{
		PublicID: publicID,
		UserID:   userID,
		Status:   domain.ConversationStatusOpen,
		Metadata: map[string]string{"page": "/pricing"},
	}
	if err := repo.Create(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestConversationRepository_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	conv := createTestConversation(t, repo, "conv_abc123", "anon-1")
	if conv.ID == 0 {
		t.Fatal("Create should backfill the database id")
	}

	found, err := repo.FindByPublicID(context.Background(), "conv_abc123")
	if err != nil {
		t.Fatalf("FindByPublicID: %v", err)
	}
	if found.UserID != "anon-1" {
		t.Errorf("UserID = %q, want anon-1", found.UserID)
	}
	if found.Status != domain.ConversationStatusOpen {
		t.Errorf("Status = %q, want open", found.Status)
	}
	if found.Metadata["page"] != "/pricing" {
		t.Errorf("Metadata = %v, want page=/pricing", found.Metadata)
	}

	if _, err := repo.FindByPublicID(context.Background(), "conv_missing"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("missing conversation error = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationRepository_FindByThreadID(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	conv := createTestConversation(t, repo, "conv_abc123", "anon-1")
	if err := repo.BindThread(context.Background(), conv.ID, 42); err != nil {
		t.Fatalf("BindThread: %v", err)
	}

	found, err := repo.FindByThreadID(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindByThreadID: %v", err)
	}
	if found.PublicID != "conv_abc123" {
		t.Errorf("PublicID = %q, want conv_abc123", found.PublicID)
	}

	if _, err := repo.FindByThreadID(context.Background(), 99); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("unknown thread error = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationRepository_BindThreadOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	conv := createTestConversation(t, repo, "conv_abc123", "anon-1")
	if err := repo.BindThread(context.Background(), conv.ID, 42); err != nil {
		t.Fatalf("first BindThread: %v", err)
	}
	if err := repo.BindThread(context.Background(), conv.ID, 43); !errors.Is(err, domain.ErrThreadTaken) {
		t.Errorf("second BindThread error = %v, want ErrThreadTaken", err)
	}
	if err := repo.BindThread(context.Background(), 9999, 44); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("BindThread on missing conversation error = %v, want ErrConversationNotFound", err)
	}

	// Thread binding must survive the failed rebind attempt.
	found, err := repo.FindByThreadID(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindByThreadID after rebind attempt: %v", err)
	}
	if found.ThreadID == nil || *found.ThreadID != 42 {
		t.Errorf("ThreadID = %v, want 42", found.ThreadID)
	}
}

func TestConversationRepository_FindByFilterOrdersByActivity(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	older := createTestConversation(t, repo, "conv_older", "anon-1")
	newer := createTestConversation(t, repo, "conv_newer", "anon-1")
	createTestConversation(t, repo, "conv_other", "anon-2")

	// Bump the older conversation's activity so it sorts first.
	at := time.Now().Add(time.Hour)
	older.LastMessageAt = &at
	if err := repo.Update(context.Background(), older); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = newer

	userID := "anon-1"
	got, err := repo.FindByFilter(context.Background(), domain.ConversationFilter{UserID: &userID})
	if err != nil {
		t.Fatalf("FindByFilter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations, want 2", len(got))
	}
	if got[0].PublicID != "conv_older" {
		t.Errorf("first conversation = %q, want conv_older (most recent activity)", got[0].PublicID)
	}
}

func TestConversationRepository_CloseResolvedBefore(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	stale := createTestConversation(t, repo, "conv_stale", "anon-1")
	fresh := createTestConversation(t, repo, "conv_fresh", "anon-1")
	open := createTestConversation(t, repo, "conv_open", "anon-1")

	stale.Status = domain.ConversationStatusResolved
	if err := repo.Update(context.Background(), stale); err != nil {
		t.Fatalf("Update stale: %v", err)
	}
	fresh.Status = domain.ConversationStatusResolved
	if err := repo.Update(context.Background(), fresh); err != nil {
		t.Fatalf("Update fresh: %v", err)
	}
	_ = open

	// Backdate the stale conversation past the retention window.
	if err := db.Model(&entities.Conversation{}).
		Where("public_id = ?", "conv_stale").
		Update("updated_at", time.Now().Add(-100*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	closed, err := repo.CloseResolvedBefore(context.Background(), time.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("CloseResolvedBefore: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}

	got, err := repo.FindByPublicID(context.Background(), "conv_stale")
	if err != nil {
		t.Fatalf("FindByPublicID: %v", err)
	}
	if got.Status != domain.ConversationStatusClosed {
		t.Errorf("stale status = %q, want closed", got.Status)
	}
	got, err = repo.FindByPublicID(context.Background(), "conv_fresh")
	if err != nil {
		t.Fatalf("FindByPublicID: %v", err)
	}
	if got.Status != domain.ConversationStatusResolved {
		t.Errorf("fresh status = %q, want resolved", got.Status)
	}
}

func TestMessageRepository_CreateAndList(t *testing.T) {
	db := openTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)

	conv := createTestConversation(t, convRepo, "conv_abc123", "anon-1")
	other := createTestConversation(t, convRepo, "conv_other", "anon-2")

	first := &domain.Message{
		PublicID:       "msg_first",
		ConversationID: conv.ID,
		Sender:         domain.SenderUser,
		Content:        "hello",
	}
	if err := msgRepo.Create(context.Background(), first); err != nil {
		t.Fatalf("create first message: %v", err)
	}
	second := &domain.Message{
		PublicID:       "msg_second",
		ConversationID: conv.ID,
		Sender:         domain.SenderSupport,
		SenderName:     "Alice",
		Content:        "hi, how can I help?",
	}
	if err := msgRepo.Create(context.Background(), second); err != nil {
		t.Fatalf("create second message: %v", err)
	}
	stranger := &domain.Message{
		PublicID:       "msg_stranger",
		ConversationID: other.ID,
		Sender:         domain.SenderUser,
		Content:        "unrelated",
	}
	if err := msgRepo.Create(context.Background(), stranger); err != nil {
		t.Fatalf("create stranger message: %v", err)
	}

	got, err := msgRepo.ListByConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].PublicID != "msg_first" || got[1].PublicID != "msg_second" {
		t.Errorf("order = [%s %s], want oldest first", got[0].PublicID, got[1].PublicID)
	}
	if got[1].SenderName != "Alice" {
		t.Errorf("SenderName = %q, want Alice", got[1].SenderName)
	}
}

func TestMessageRepository_SetTelegramMessageID(t *testing.T) {
	db := openTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)

	conv := createTestConversation(t, convRepo, "conv_abc123", "anon-1")
	msg := &domain.Message{
		PublicID:       "msg_first",
		ConversationID: conv.ID,
		Sender:         domain.SenderSupport,
		Content:        "hello",
	}
	if err := msgRepo.Create(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := msgRepo.SetTelegramMessageID(context.Background(), msg.ID, 777); err != nil {
		t.Fatalf("SetTelegramMessageID: %v", err)
	}
	got, err := msgRepo.ListByConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if got[0].TelegramMessageID == nil || *got[0].TelegramMessageID != 777 {
		t.Errorf("TelegramMessageID = %v, want 777", got[0].TelegramMessageID)
	}

	if err := msgRepo.SetTelegramMessageID(context.Background(), 9999, 1); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("missing message error = %v, want ErrMessageNotFound", err)
	}
}

func TestMessageRepository_MarkSupportMessagesRead(t *testing.T) {
	db := openTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)

	conv := createTestConversation(t, convRepo, "conv_abc123", "anon-1")
	for i, m := range []*domain.Message{
		{PublicID: "msg_a", Sender: domain.SenderSupport, Content: "one"},
		{PublicID: "msg_b", Sender: domain.SenderSupport, Content: "two"},
		{PublicID: "msg_c", Sender: domain.SenderUser, Content: "three", Read: true},
	} {
		m.ConversationID = conv.ID
		if err := msgRepo.Create(context.Background(), m); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	updated, err := msgRepo.MarkSupportMessagesRead(context.Background(), conv.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkSupportMessagesRead: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}

	// Second run is a no-op.
	updated, err = msgRepo.MarkSupportMessagesRead(context.Background(), conv.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkSupportMessagesRead again: %v", err)
	}
	if updated != 0 {
		t.Errorf("second run updated = %d, want 0", updated)
	}

	got, err := msgRepo.ListByConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	for _, m := range got {
		if !m.Read {
			t.Errorf("message %s should be read", m.PublicID)
		}
		if m.Sender == domain.SenderSupport && m.ReadAt == nil {
			t.Errorf("support message %s should carry a read timestamp", m.PublicID)
		}
	}
}
