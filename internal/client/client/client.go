package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/api"
)

// Plaintext is a decrypted message. Body is nil for media-only messages.
type Plaintext struct {
	Message *api.Message
	Body    []byte
}

// Client is the surface the CLI needs from the backend.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Me(ctx context.Context) (*api.User, error)
	Signup(ctx context.Context, displayName string) (*api.User, error)

	ListChats(ctx context.Context) ([]*api.Chat, error)
	CreateGroup(ctx context.Context, name string, memberIDs []string) (*api.Chat, error)
	OpenDM(ctx context.Context, userID string) (*api.Chat, error)
	Participants(ctx context.Context, chatID string) ([]*api.Participant, error)
	RotateKey(ctx context.Context, chatID string) (int64, error)

	Send(ctx context.Context, chatID string, body []byte, mediaURL string, disappearIn time.Duration) (*api.Message, error)
	History(ctx context.Context, chatID string, after int64, limit int) ([]*Plaintext, bool, error)
	Decrypt(ctx context.Context, m *api.Message) (*Plaintext, error)
	MarkRead(ctx context.Context, messageID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	Subscribe(ctx context.Context, chatID string, after int64, fn func(*api.Event) error) error

	UploadMedia(ctx context.Context, chatID string, data []byte, contentType, purpose string) (string, error)

	ListTasks(ctx context.Context) ([]*api.Task, error)
	CreateTask(ctx context.Context, title, description, targetRole string) (*api.Task, error)
	UpdateTask(ctx context.Context, taskID, status string) (*api.Task, error)

	WhitelistAdd(ctx context.Context, email string) error
	WhitelistList(ctx context.Context) ([]*api.WhitelistEntry, error)
}
