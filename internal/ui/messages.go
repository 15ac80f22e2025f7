package ui

import "github.com/danhigham/telesync/internal/domain"

// StoreUpdatedMsg signals that a new snapshot was published.
type StoreUpdatedMsg struct{}

// ChatSelectedMsg is emitted when the user picks a chat.
type ChatSelectedMsg struct {
	ChatID domain.ChatID
}

// sendMessageMsg is emitted when the user presses Enter in the input.
type sendMessageMsg struct {
	text string
}

// loadOlderMsg is emitted when the message view is scrolled to the top.
type loadOlderMsg struct{}

type selectListMsg struct {
	index int
}

// authSubmitMsg answers the pending authentication step.
type authSubmitMsg struct {
	value string
}

type (
	resendCodeMsg   struct{}
	qrLoginMsg      struct{}
	deleteFolderMsg struct{}
)

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg triggers a status bar time refresh.
type clockTickMsg struct{}
