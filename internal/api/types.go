// Package api is the wire contract of the arctic.v1.Messaging gRPC service:
// plain Go request and response types carried by the CBOR codec, the
// service descriptor and a typed client.
package api

import "time"

type User struct {
	ID           string     `cbor:"id"`
	Email        string     `cbor:"email"`
	DisplayName  string     `cbor:"display_name"`
	PfpURL       string     `cbor:"pfp_url,omitempty"`
	Role         string     `cbor:"role"`
	RoleWeight   int        `cbor:"role_weight"`
	Status       string     `cbor:"status"`
	TimeoutUntil *time.Time `cbor:"timeout_until,omitempty"`
	PublicKey    string     `cbor:"public_key,omitempty"`
	CreatedAt    time.Time  `cbor:"created_at"`
}

type Chat struct {
	ID               string    `cbor:"id"`
	Type             string    `cbor:"type"`
	Name             string    `cbor:"name,omitempty"`
	Description      string    `cbor:"description,omitempty"`
	PfpURL           string    `cbor:"pfp_url,omitempty"`
	CurrentEpoch     int64     `cbor:"current_epoch"`
	LastSequence     int64     `cbor:"last_sequence"`
	StorageUsedBytes int64     `cbor:"storage_used_bytes"`
	CreatedAt        time.Time `cbor:"created_at"`
}

type Participant struct {
	ChatID    string    `cbor:"chat_id"`
	UserID    string    `cbor:"user_id"`
	GroupRole string    `cbor:"group_role"`
	JoinedAt  time.Time `cbor:"joined_at"`
}

// Message is the stored envelope. Clients decrypt it with the epoch key
// obtained through KeyBundle.
type Message struct {
	ID             string     `cbor:"id"`
	ChatID         string     `cbor:"chat_id"`
	SenderID       string     `cbor:"sender_id"`
	Ciphertext     []byte     `cbor:"ciphertext"`
	Nonce          []byte     `cbor:"nonce"`
	KeyEpoch       int64      `cbor:"key_epoch"`
	MediaURL       string     `cbor:"media_url,omitempty"`
	IsCompressed   bool       `cbor:"is_compressed"`
	IsDisappearing bool       `cbor:"is_disappearing"`
	ExpiresAt      *time.Time `cbor:"expires_at,omitempty"`
	Sequence       int64      `cbor:"sequence"`
	ClientSentAt   *time.Time `cbor:"client_sent_at,omitempty"`
	CreatedAt      time.Time  `cbor:"created_at"`
}

type Receipt struct {
	MessageID string    `cbor:"message_id"`
	UserID    string    `cbor:"user_id"`
	State     string    `cbor:"state"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

type Task struct {
	ID               string    `cbor:"id"`
	Title            string    `cbor:"title"`
	Description      string    `cbor:"description,omitempty"`
	AssignedBy       string    `cbor:"assigned_by"`
	TargetRoleWeight int       `cbor:"target_role_weight"`
	Status           string    `cbor:"status"`
	CreatedAt        time.Time `cbor:"created_at"`
	UpdatedAt        time.Time `cbor:"updated_at"`
}

type WhitelistEntry struct {
	ID        string    `cbor:"id"`
	Email     string    `cbor:"email"`
	AddedBy   string    `cbor:"added_by"`
	CreatedAt time.Time `cbor:"created_at"`
}

// Event kinds delivered on a Subscribe stream.
const (
	EventMessage = "message"
	EventReceipt = "receipt"
	EventPurge   = "purge"
)

type Event struct {
	Kind       string    `cbor:"kind"`
	ChatID     string    `cbor:"chat_id"`
	Sequence   int64     `cbor:"sequence,omitempty"`
	MessageID  string    `cbor:"message_id,omitempty"`
	Message    *Message  `cbor:"message,omitempty"`
	Receipt    *Receipt  `cbor:"receipt,omitempty"`
	OccurredAt time.Time `cbor:"occurred_at"`
}

type Empty struct{}

type PingRequest struct{}

type PingResponse struct {
	Status string `cbor:"status"`
}

type SignupRequest struct {
	DisplayName string `cbor:"display_name"`
	PfpURL      string `cbor:"pfp_url,omitempty"`
	PublicKey   string `cbor:"public_key"`
}

type GetUserRequest struct {
	UserID string `cbor:"user_id"`
}

// ModerateRequest serves Ban, Timeout, Reinstate and SetRole. Until is
// read by Timeout only and Role by SetRole only.
type ModerateRequest struct {
	UserID string     `cbor:"user_id"`
	Until  *time.Time `cbor:"until,omitempty"`
	Role   string     `cbor:"role,omitempty"`
}

type UserResponse struct {
	User *User `cbor:"user"`
}

type WhitelistRequest struct {
	Email string `cbor:"email"`
}

type WhitelistCheckResponse struct {
	Whitelisted bool `cbor:"whitelisted"`
}

type WhitelistEntryResponse struct {
	Entry *WhitelistEntry `cbor:"entry"`
}

type WhitelistListResponse struct {
	Entries []*WhitelistEntry `cbor:"entries"`
}

type CreateGroupRequest struct {
	Name        string   `cbor:"name"`
	Description string   `cbor:"description,omitempty"`
	PfpURL      string   `cbor:"pfp_url,omitempty"`
	MemberIDs   []string `cbor:"member_ids,omitempty"`
}

type OpenDMRequest struct {
	UserID string `cbor:"user_id"`
}

type ChatRequest struct {
	ChatID string `cbor:"chat_id"`
}

type ChatResponse struct {
	Chat *Chat `cbor:"chat"`
}

type ListChatsResponse struct {
	Chats []*Chat `cbor:"chats"`
}

// MembershipRequest serves AddParticipant, Kick, Promote and Demote.
type MembershipRequest struct {
	ChatID string `cbor:"chat_id"`
	UserID string `cbor:"user_id"`
}

type ParticipantsResponse struct {
	Participants []*Participant `cbor:"participants"`
}

type RotateKeyResponse struct {
	Epoch int64 `cbor:"epoch"`
}

type KeyBundleRequest struct {
	ChatID string `cbor:"chat_id"`
	// Epoch 0 selects the current epoch.
	Epoch int64 `cbor:"epoch,omitempty"`
}

type KeyBundleResponse struct {
	Sealed []byte `cbor:"sealed"`
}

type SendRequest struct {
	ChatID       string        `cbor:"chat_id"`
	Body         []byte        `cbor:"body,omitempty"`
	MediaURL     string        `cbor:"media_url,omitempty"`
	DisappearIn  time.Duration `cbor:"disappear_in,omitempty"`
	ClientSentAt *time.Time    `cbor:"client_sent_at,omitempty"`
}

type MessageRequest struct {
	MessageID string `cbor:"message_id"`
}

type MessageResponse struct {
	Message *Message `cbor:"message"`
}

type ReceiptsResponse struct {
	Receipts []*Receipt `cbor:"receipts"`
}

type ListSinceRequest struct {
	ChatID        string `cbor:"chat_id"`
	AfterSequence int64  `cbor:"after_sequence"`
	Limit         int    `cbor:"limit,omitempty"`
}

type ListSinceResponse struct {
	Messages []*Message `cbor:"messages"`
	HasMore  bool       `cbor:"has_more"`
}

type SubscribeRequest struct {
	ChatID        string `cbor:"chat_id"`
	AfterSequence int64  `cbor:"after_sequence"`
}

type CreateTaskRequest struct {
	Title       string `cbor:"title"`
	Description string `cbor:"description,omitempty"`
	TargetRole  string `cbor:"target_role"`
}

type UpdateTaskRequest struct {
	TaskID string `cbor:"task_id"`
	Status string `cbor:"status"`
}

type TaskResponse struct {
	Task *Task `cbor:"task"`
}

type ListTasksResponse struct {
	Tasks []*Task `cbor:"tasks"`
}

type UploadMediaRequest struct {
	// ChatID is empty for profile pictures.
	ChatID      string `cbor:"chat_id,omitempty"`
	Data        []byte `cbor:"data"`
	ContentType string `cbor:"content_type"`
	Purpose     string `cbor:"purpose"`
}

type UploadMediaResponse struct {
	URL string `cbor:"url"`
}
