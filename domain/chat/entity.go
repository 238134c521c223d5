package chat

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// the caller is not a member of it.
var ErrConversationNotFound = errors.New("conversation not found")

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageMedia MessageType = "media"
)

// MessageStatus is the derived delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// StringList is a JSON-encoded list of user identifiers stored in a single
// text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported column type %T for StringList", value)
	}
}

// Contains reports whether id is present in the list.
func (l StringList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// ReadReceipt records that a user read a message at a point in time.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// ReadReceipts is a JSON-encoded receipt sequence stored in a text column.
type ReadReceipts []ReadReceipt

// Value implements driver.Valuer.
func (r ReadReceipts) Value() (driver.Value, error) {
	if r == nil {
		r = ReadReceipts{}
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ReadReceipts) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported column type %T for ReadReceipts", value)
	}
}

// Contains reports whether userID already has a receipt.
func (r ReadReceipts) Contains(userID string) bool {
	for _, receipt := range r {
		if receipt.UserID == userID {
			return true
		}
	}
	return false
}

// Conversation is a persisted chat between two or more users.
type Conversation struct {
	ID            string     `gorm:"primarykey;size:36" json:"id"`
	Members       StringList `gorm:"type:text;not null" json:"members"`
	LastMessageID string     `gorm:"size:36" json:"lastMessageId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName returns the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// HasMember reports whether userID is a member of the conversation.
func (c *Conversation) HasMember(userID string) bool {
	return c.Members.Contains(userID)
}

// Message is a persisted chat message with its receipt sets.
type Message struct {
	ID             string       `gorm:"primarykey;size:36" json:"id"`
	ConversationID string       `gorm:"size:36;index;not null" json:"conversationId"`
	SenderID       string       `gorm:"size:36;not null" json:"senderId"`
	Type           MessageType  `gorm:"size:16;not null" json:"type"`
	Text           string       `gorm:"size:5000" json:"text,omitempty"`
	MediaURL       string       `gorm:"size:2048" json:"mediaUrl,omitempty"`
	ReplyToID      string       `gorm:"size:36" json:"replyToMessageId,omitempty"`
	DeliveredTo    StringList   `gorm:"type:text" json:"deliveredTo"`
	ReadBy         ReadReceipts `gorm:"type:text" json:"readBy"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// Status derives the delivery state from the receipt sets: read as soon as
// anyone read it, delivered as soon as anyone received it, sent otherwise.
func (m *Message) Status() MessageStatus {
	if len(m.ReadBy) > 0 {
		return StatusRead
	}
	if len(m.DeliveredTo) > 0 {
		return StatusDelivered
	}
	return StatusSent
}

// MarkDelivered adds userID to the deliveredTo set. It reports whether the
// set changed; repeated calls for the same user are no-ops.
func (m *Message) MarkDelivered(userID string) bool {
	if m.DeliveredTo.Contains(userID) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, userID)
	return true
}

// MarkRead appends a read receipt for userID. It reports whether the
// sequence changed; a user appears at most once.
func (m *Message) MarkRead(userID string, at time.Time) bool {
	if m.ReadBy.Contains(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
	return true
}

// MarshalJSON includes the derived status alongside the stored fields.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		alias
		Status MessageStatus `json:"status"`
	}{
		alias:  alias(m),
		Status: m.Status(),
	})
}

// User holds the slice of the user directory this service touches.
type User struct {
	ID       string    `gorm:"primarykey;size:36" json:"id"`
	LastSeen time.Time `json:"lastSeen"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}
