package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/telegram"
	"jan-server/services/support-api/internal/webhook"
)

const (
	testSecret  = "hook-secret"
	supportChat = int64(-100123)
	boundThread = int64(77)
)

type fakeStore struct {
	conv      *support.Conversation
	findErr   error
	created   []support.SupportMessageParams
	createErr error
	attached  map[uint]int64
	attachErr error
	published []*support.Message
	calls     int
}

func (f *fakeStore) GetConversationByThreadID(ctx context.Context, threadID int64) (*support.Conversation, error) {
	f.calls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.conv == nil || f.conv.ThreadID == nil || *f.conv.ThreadID != threadID {
		return nil, support.ErrConversationNotFound
	}
	return f.conv, nil
}

func (f *fakeStore) CreateSupportMessage(ctx context.Context, conv *support.Conversation, params support.SupportMessageParams) (*support.Message, error) {
	f.calls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	return &support.Message{
		ID:                   uint(len(f.created)),
		PublicID:             fmt.Sprintf("msg_%d", len(f.created)),
		ConversationID:       conv.ID,
		ConversationPublicID: conv.PublicID,
		Sender:               support.SenderSupport,
		SenderName:           params.SenderName,
		SenderTelegramID:     params.SenderTelegramID,
		Content:              params.Content,
		ImageURL:             params.ImageURL,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

func (f *fakeStore) SetMessageTelegramID(ctx context.Context, messageID uint, telegramMessageID int64) error {
	f.calls++
	if f.attachErr != nil {
		return f.attachErr
	}
	if f.attached == nil {
		f.attached = make(map[uint]int64)
	}
	f.attached[messageID] = telegramMessageID
	return nil
}

func (f *fakeStore) PublishMessage(conversationPublicID string, msg *support.Message) {
	f.published = append(f.published, msg)
}

type notice struct {
	threadID int64
	text     string
}

type fakeBot struct {
	chatID      int64
	notices     []notice
	sendErr     error
	filePaths   map[string]string
	filePathErr error
	files       map[string][]byte
	downloadErr error
}

func (f *fakeBot) IsSupportChat(chatID int64) bool {
	return chatID == f.chatID
}

func (f *fakeBot) SendMessageToTopic(ctx context.Context, threadID int64, html, senderLabel string) (int64, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.notices = append(f.notices, notice{threadID: threadID, text: html})
	return int64(9000 + len(f.notices)), nil
}

func (f *fakeBot) GetFilePath(ctx context.Context, fileID string) (string, error) {
	if f.filePathErr != nil {
		return "", f.filePathErr
	}
	path, ok := f.filePaths[fileID]
	if !ok {
		return "", fmt.Errorf("unknown file id %s", fileID)
	}
	return path, nil
}

func (f *fakeBot) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.files[filePath]
	if !ok {
		return nil, fmt.Errorf("unknown file path %s", filePath)
	}
	return data, nil
}

type fakeImages struct {
	stored [][]byte
	url    string
	err    error
}

func (f *fakeImages) Store(ctx context.Context, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, data)
	return f.url, nil
}

func boundConversation() *support.Conversation {
	threadID := boundThread
	return &support.Conversation{
		ID:       1,
		PublicID: "conv_abc",
		UserID:   "visitor-1",
		Status:   support.ConversationStatusOpen,
		ThreadID: &threadID,
	}
}

func newProcessor(secret string, store *fakeStore, bot *fakeBot, images *fakeImages) *webhook.Processor {
	cfg := &config.Config{WebhookSecret: secret}
	return webhook.NewProcessor(cfg, store, bot, images, zerolog.Nop())
}

func marshalUpdate(t *testing.T, update telegram.Update) []byte {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)
	return body
}

func agentMessage(text string) *telegram.IncomingMessage {
	threadID := boundThread
	return &telegram.IncomingMessage{
		MessageID:       501,
		From:            &telegram.User{ID: 42, FirstName: "Ada"},
		Chat:            telegram.Chat{ID: supportChat, Type: "supergroup"},
		MessageThreadID: &threadID,
		Text:            text,
	}
}

func TestProcess_Authentication(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	bot := &fakeBot{chatID: supportChat}
	body := marshalUpdate(t, telegram.Update{UpdateID: 1, Message: agentMessage("hi")})

	t.Run("missing server secret rejects", func(t *testing.T) {
		proc := newProcessor("", store, bot, &fakeImages{})
		outcome, err := proc.Process(context.Background(), testSecret, body)
		require.ErrorIs(t, err, webhook.ErrSecretNotConfigured)
		require.Equal(t, webhook.OutcomeRejected, outcome)
	})

	t.Run("wrong secret rejects before parsing", func(t *testing.T) {
		proc := newProcessor(testSecret, store, bot, &fakeImages{})
		outcome, err := proc.Process(context.Background(), "wrong", []byte("{not-json"))
		require.ErrorIs(t, err, webhook.ErrBadSecret)
		require.Equal(t, webhook.OutcomeRejected, outcome)
	})

	require.Zero(t, store.calls, "rejected updates must not touch the store")
}

func TestProcess_MalformedBody(t *testing.T) {
	store := &fakeStore{}
	proc := newProcessor(testSecret, store, &fakeBot{chatID: supportChat}, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret, []byte("{not-json"))
	require.ErrorIs(t, err, webhook.ErrBadUpdate)
	require.Equal(t, webhook.OutcomeRejected, outcome)
	require.Zero(t, store.calls)
}

func TestProcess_IgnoredUpdates(t *testing.T) {
	threadID := boundThread
	tests := []struct {
		name   string
		update telegram.Update
	}{
		{
			name:   "no message",
			update: telegram.Update{UpdateID: 1},
		},
		{
			name: "foreign chat",
			update: telegram.Update{UpdateID: 2, Message: &telegram.IncomingMessage{
				From:            &telegram.User{ID: 42},
				Chat:            telegram.Chat{ID: 555},
				MessageThreadID: &threadID,
				Text:            "hello",
			}},
		},
		{
			name: "general topic",
			update: telegram.Update{UpdateID: 3, Message: &telegram.IncomingMessage{
				From: &telegram.User{ID: 42},
				Chat: telegram.Chat{ID: supportChat},
				Text: "hello",
			}},
		},
		{
			name: "bot author",
			update: telegram.Update{UpdateID: 4, Message: &telegram.IncomingMessage{
				From:            &telegram.User{ID: 42, IsBot: true},
				Chat:            telegram.Chat{ID: supportChat},
				MessageThreadID: &threadID,
				Text:            "hello",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{conv: boundConversation()}
			proc := newProcessor(testSecret, store, &fakeBot{chatID: supportChat}, &fakeImages{})

			outcome, err := proc.Process(context.Background(), testSecret, marshalUpdate(t, tt.update))
			require.NoError(t, err)
			require.Equal(t, webhook.OutcomeIgnored, outcome)
			require.Zero(t, store.calls, "ignored updates must not touch the store")
		})
	}
}

func TestProcess_UnlinkedTopic(t *testing.T) {
	store := &fakeStore{} // no conversation bound anywhere
	bot := &fakeBot{chatID: supportChat}
	proc := newProcessor(testSecret, store, bot, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 5, Message: agentMessage("anyone there?")}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeUnlinked, outcome)
	require.Empty(t, store.created)

	require.Len(t, bot.notices, 1, "warning must be posted back into the topic")
	require.Equal(t, boundThread, bot.notices[0].threadID)

	t.Run("warning post failure stays acked", func(t *testing.T) {
		failing := &fakeBot{chatID: supportChat, sendErr: errors.New("telegram down")}
		proc := newProcessor(testSecret, &fakeStore{}, failing, &fakeImages{})

		outcome, err := proc.Process(context.Background(), testSecret,
			marshalUpdate(t, telegram.Update{UpdateID: 6, Message: agentMessage("hello?")}))
		require.NoError(t, err)
		require.Equal(t, webhook.OutcomeUnlinked, outcome)
	})
}

func TestProcess_DeliversTextReply(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	bot := &fakeBot{chatID: supportChat}
	proc := newProcessor(testSecret, store, bot, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 7, Message: agentMessage("how can I help?")}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeDelivered, outcome)

	require.Len(t, store.created, 1)
	params := store.created[0]
	require.Equal(t, "how can I help?", params.Content)
	require.Equal(t, "Ada", params.SenderName)
	require.NotNil(t, params.SenderTelegramID)
	require.Equal(t, int64(42), *params.SenderTelegramID)

	require.Equal(t, int64(501), store.attached[1], "platform message id must be attached")

	require.Len(t, store.published, 1)
	require.NotNil(t, store.published[0].TelegramMessageID)
	require.Equal(t, int64(501), *store.published[0].TelegramMessageID)
}

func TestProcess_RehostsLargestPhoto(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	bot := &fakeBot{
		chatID:    supportChat,
		filePaths: map[string]string{"big": "photos/big.jpg"},
		files:     map[string][]byte{"photos/big.jpg": []byte("jpeg-bytes")},
	}
	images := &fakeImages{url: "https://cdn.example.com/images/abc.jpg"}
	proc := newProcessor(testSecret, store, bot, images)

	msg := agentMessage("")
	msg.Caption = "screenshot attached"
	msg.Photo = []telegram.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "big", Width: 1280, Height: 960},
	}

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 8, Message: msg}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeDelivered, outcome)

	require.Len(t, images.stored, 1)
	require.Equal(t, []byte("jpeg-bytes"), images.stored[0])

	require.Len(t, store.created, 1)
	require.Equal(t, "screenshot attached", store.created[0].Content, "caption is used when text is empty")
	require.Equal(t, images.url, store.created[0].ImageURL)
}

func TestProcess_RehostFailureDegradesToText(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	bot := &fakeBot{chatID: supportChat, downloadErr: errors.New("file gone")}
	bot.filePaths = map[string]string{"big": "photos/big.jpg"}
	proc := newProcessor(testSecret, store, bot, &fakeImages{})

	msg := agentMessage("see attachment")
	msg.Photo = []telegram.PhotoSize{{FileID: "big", Width: 800, Height: 600}}

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 9, Message: msg}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeDelivered, outcome)

	require.Len(t, store.created, 1)
	require.Equal(t, "see attachment", store.created[0].Content)
	require.Empty(t, store.created[0].ImageURL, "failed re-host omits the image, not the message")
}

func TestProcess_EmptyMessage(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	proc := newProcessor(testSecret, store, &fakeBot{chatID: supportChat}, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 10, Message: agentMessage("")}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeEmpty, outcome)
	require.Empty(t, store.created)
	require.Empty(t, store.published)
}

func TestProcess_PhotoOnlyWithFailedRehostIsEmpty(t *testing.T) {
	store := &fakeStore{conv: boundConversation()}
	bot := &fakeBot{chatID: supportChat, filePathErr: errors.New("api down")}
	proc := newProcessor(testSecret, store, bot, &fakeImages{})

	msg := agentMessage("")
	msg.Photo = []telegram.PhotoSize{{FileID: "only", Width: 100, Height: 100}}

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 11, Message: msg}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeEmpty, outcome)
	require.Empty(t, store.created)
}

func TestProcess_PersistFailure(t *testing.T) {
	store := &fakeStore{conv: boundConversation(), createErr: errors.New("db down")}
	proc := newProcessor(testSecret, store, &fakeBot{chatID: supportChat}, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 12, Message: agentMessage("hello")}))
	require.Error(t, err)
	require.Equal(t, webhook.OutcomeFailed, outcome)
	require.Empty(t, store.published)
}

func TestProcess_AttachFailureStillDelivers(t *testing.T) {
	store := &fakeStore{conv: boundConversation(), attachErr: errors.New("row vanished")}
	proc := newProcessor(testSecret, store, &fakeBot{chatID: supportChat}, &fakeImages{})

	outcome, err := proc.Process(context.Background(), testSecret,
		marshalUpdate(t, telegram.Update{UpdateID: 13, Message: agentMessage("hello")}))
	require.NoError(t, err)
	require.Equal(t, webhook.OutcomeDelivered, outcome)

	require.Len(t, store.published, 1)
	require.Nil(t, store.published[0].TelegramMessageID)
}
