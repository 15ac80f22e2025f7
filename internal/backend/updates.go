package backend

import (
	"time"

	"github.com/danhigham/telesync/internal/domain"
)

// Update is one push event of an account's update stream.
type Update interface {
	isUpdate()
}

type UpdateAuthorizationState struct {
	State AuthorizationState
}

type UpdateNewChat struct {
	Chat domain.Chat
}

type UpdateChatTitle struct {
	ChatID domain.ChatID
	Title  string
}

type UpdateChatPosition struct {
	ChatID   domain.ChatID
	Position domain.ChatPosition
}

type UpdateChatLastMessage struct {
	ChatID      domain.ChatID
	LastMessage *domain.Message
	Positions   []domain.ChatPosition
}

type UpdateChatReadInbox struct {
	ChatID          domain.ChatID
	LastReadInboxID domain.MessageID
	UnreadCount     int
}

type UpdateChatReadOutbox struct {
	ChatID           domain.ChatID
	LastReadOutboxID domain.MessageID
}

type UpdateChatDraftMessage struct {
	ChatID    domain.ChatID
	Draft     *domain.DraftMessage
	Positions []domain.ChatPosition
}

// UpdateChatFolders carries the authoritative folder list in display order.
// MainChatListPosition is where the main list sits among the folders.
type UpdateChatFolders struct {
	Folders              []domain.FolderInfo
	MainChatListPosition int
}

type UpdateUnreadChatCount struct {
	List               domain.ListKind
	UnreadCount        int
	UnreadUnmutedCount int
}

type UpdateNewMessage struct {
	Message domain.Message
}

type UpdateMessageContent struct {
	ChatID      domain.ChatID
	MessageID   domain.MessageID
	Text        string
	HasMarkdown bool
	EditDate    time.Time
}

type UpdateDeleteMessages struct {
	ChatID      domain.ChatID
	MessageIDs  []domain.MessageID
	IsPermanent bool
	FromCache   bool
}

type UpdateMessageInteractionInfo struct {
	ChatID    domain.ChatID
	MessageID domain.MessageID
	Info      domain.InteractionInfo
}

type UpdateMessageSendSucceeded struct {
	OldMessageID domain.MessageID
	Message      domain.Message
}

type UpdateUser struct {
	User domain.User
}

type UpdateUserStatus struct {
	UserID domain.UserID
	Status domain.UserStatus
}

func (UpdateAuthorizationState) isUpdate()     {}
func (UpdateNewChat) isUpdate()                {}
func (UpdateChatTitle) isUpdate()              {}
func (UpdateChatPosition) isUpdate()           {}
func (UpdateChatLastMessage) isUpdate()        {}
func (UpdateChatReadInbox) isUpdate()          {}
func (UpdateChatReadOutbox) isUpdate()         {}
func (UpdateChatDraftMessage) isUpdate()       {}
func (UpdateChatFolders) isUpdate()            {}
func (UpdateUnreadChatCount) isUpdate()        {}
func (UpdateNewMessage) isUpdate()             {}
func (UpdateMessageContent) isUpdate()         {}
func (UpdateDeleteMessages) isUpdate()         {}
func (UpdateMessageInteractionInfo) isUpdate() {}
func (UpdateMessageSendSucceeded) isUpdate()   {}
func (UpdateUser) isUpdate()                   {}
func (UpdateUserStatus) isUpdate()             {}

// AuthorizationState is the backend's view of the account's login progress.
type AuthorizationState interface {
	isAuthorizationState()
}

type CodeType int

const (
	CodeTypeApp CodeType = iota
	CodeTypeSMS
	CodeTypeCall
	CodeTypeFlashCall
	CodeTypeMissedCall
	CodeTypeFragment
	CodeTypeEmail
)

func (t CodeType) String() string {
	switch t {
	case CodeTypeApp:
		return "app"
	case CodeTypeSMS:
		return "sms"
	case CodeTypeCall:
		return "call"
	case CodeTypeFlashCall:
		return "flash call"
	case CodeTypeMissedCall:
		return "missed call"
	case CodeTypeFragment:
		return "fragment"
	case CodeTypeEmail:
		return "email"
	default:
		return "unknown"
	}
}

// CodeInfo describes a sent authentication code. Timeout is the number of
// seconds before NextType may be requested; HasNextType is false when no
// other delivery method exists.
type CodeInfo struct {
	PhoneNumber string
	Type        CodeType
	Length      int
	HasNextType bool
	NextType    CodeType
	Timeout     int
}

type TermsOfService struct {
	Text       string
	MinUserAge int
	ShowPopup  bool
}

type AuthorizationStateWaitParameters struct{}
type AuthorizationStateWaitPhoneNumber struct{}

type AuthorizationStateWaitCode struct {
	CodeInfo CodeInfo
}

type AuthorizationStateWaitPassword struct {
	Hint                 string
	HasRecoveryEmail     bool
	RecoveryEmailPattern string
}

type AuthorizationStateWaitRegistration struct {
	TermsOfService TermsOfService
}

type AuthorizationStateWaitOtherDeviceConfirmation struct {
	Link string
}

type AuthorizationStateReady struct{}
type AuthorizationStateLoggingOut struct{}
type AuthorizationStateClosing struct{}
type AuthorizationStateClosed struct{}

func (AuthorizationStateWaitParameters) isAuthorizationState()              {}
func (AuthorizationStateWaitPhoneNumber) isAuthorizationState()             {}
func (AuthorizationStateWaitCode) isAuthorizationState()                    {}
func (AuthorizationStateWaitPassword) isAuthorizationState()                {}
func (AuthorizationStateWaitRegistration) isAuthorizationState()            {}
func (AuthorizationStateWaitOtherDeviceConfirmation) isAuthorizationState() {}
func (AuthorizationStateReady) isAuthorizationState()                       {}
func (AuthorizationStateLoggingOut) isAuthorizationState()                  {}
func (AuthorizationStateClosing) isAuthorizationState()                     {}
func (AuthorizationStateClosed) isAuthorizationState()                      {}
