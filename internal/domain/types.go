package domain

import (
	"fmt"
	"time"
)

type (
	ChatID    int64
	MessageID int64
	UserID    int64
)

// ListType is the server-defined collection a chat list mirrors.
type ListType int

const (
	ListMain ListType = iota
	ListArchive
	ListFolder
)

// ListKind identifies one chat list of an account. FolderID is only
// meaningful for ListFolder.
type ListKind struct {
	Type     ListType
	FolderID int
}

func MainList() ListKind          { return ListKind{Type: ListMain} }
func ArchiveList() ListKind       { return ListKind{Type: ListArchive} }
func FolderList(id int) ListKind  { return ListKind{Type: ListFolder, FolderID: id} }
func (k ListKind) IsFolder() bool { return k.Type == ListFolder }

func (k ListKind) String() string {
	switch k.Type {
	case ListMain:
		return "main"
	case ListArchive:
		return "archive"
	default:
		return fmt.Sprintf("folder:%d", k.FolderID)
	}
}

// ChatPosition is a chat's place in one list. Order 0 means the chat is not
// in the list.
type ChatPosition struct {
	List     ListKind
	Order    int64
	IsPinned bool
}

// Sender is the author of a message: either a user or a chat posting on its
// own behalf (channels, anonymous admins).
type Sender interface {
	isSender()
}

type SenderUser struct {
	UserID UserID
}

type SenderChat struct {
	ChatID ChatID
}

func (SenderUser) isSender() {}
func (SenderChat) isSender() {}

type InteractionInfo struct {
	ViewCount    int
	ForwardCount int
	ReplyCount   int
}

type Message struct {
	ID          MessageID
	ChatID      ChatID
	Sender      Sender
	SenderName  string
	Text        string
	HasMarkdown bool // true if Text contains markdown from Telegram entities
	Date        time.Time
	EditDate    time.Time
	Out         bool // true if sent by us
	Interaction InteractionInfo
}

type DraftMessage struct {
	Text string
	Date time.Time
}

type ChatType int

const (
	ChatTypePrivate ChatType = iota
	ChatTypeGroup
	ChatTypeSupergroup
	ChatTypeChannel
)

type Chat struct {
	ID               ChatID
	Type             ChatType
	Title            string
	LastMessage      *Message
	UnreadCount      int
	LastReadInboxID  MessageID
	LastReadOutboxID MessageID
	Draft            *DraftMessage
	Positions        []ChatPosition
}

// SetPosition records p, replacing any position for the same list. A zero
// order drops the list from Positions.
func (c *Chat) SetPosition(p ChatPosition) {
	for i, cur := range c.Positions {
		if cur.List != p.List {
			continue
		}
		if p.Order == 0 {
			c.Positions = append(c.Positions[:i], c.Positions[i+1:]...)
		} else {
			c.Positions[i] = p
		}
		return
	}
	if p.Order != 0 {
		c.Positions = append(c.Positions, p)
	}
}

// Position returns the chat's position in list k.
func (c *Chat) Position(k ListKind) (ChatPosition, bool) {
	for _, p := range c.Positions {
		if p.List == k {
			return p, true
		}
	}
	return ChatPosition{}, false
}

type UserStatusKind int

const (
	StatusEmpty UserStatusKind = iota
	StatusOnline
	StatusOffline
	StatusRecently
	StatusLastWeek
	StatusLastMonth
)

type UserStatus struct {
	Kind      UserStatusKind
	Expires   time.Time // StatusOnline
	WasOnline time.Time // StatusOffline
}

type User struct {
	ID        UserID
	FirstName string
	LastName  string
	Username  string
	Phone     string
	Status    UserStatus
}

// DisplayName returns a display name for a user.
func (u User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}

// FolderInfo is the server metadata of one chat folder.
type FolderInfo struct {
	ID    int
	Title string
	Icon  string
}
