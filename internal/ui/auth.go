package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/state"
)

const authBoxWidth = 56

// AuthModel prompts for the pending authentication step of an account.
type AuthModel struct {
	input   textinput.Model
	step    state.AuthStep
	account string
	shown   bool
	width   int
	height  int
}

func NewAuthModel() AuthModel {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.SetWidth(authBoxWidth - 8)
	return AuthModel{input: ti}
}

// SetStep shows step. The input is cleared whenever the step kind changes.
func (m AuthModel) SetStep(account string, step state.AuthStep) (AuthModel, tea.Cmd) {
	changed := !m.shown || step.Waiting != m.step.Waiting || step.Kind != m.step.Kind
	m.step = step
	m.account = account
	m.shown = true
	if !changed {
		return m, nil
	}

	m.input.Reset()
	m.input.EchoMode = textinput.EchoNormal
	switch step.Kind {
	case auth.KindWaitPhoneNumber:
		m.input.Placeholder = "+1 555 0100"
	case auth.KindWaitCode:
		m.input.Placeholder = strings.Repeat("•", max(step.CodeInfo.Length, 5))
	case auth.KindWaitPassword:
		m.input.Placeholder = "password"
		m.input.EchoMode = textinput.EchoPassword
	case auth.KindWaitRegistration:
		m.input.Placeholder = "First Last"
	}
	if step.Waiting || step.Kind == auth.KindWaitOtherDeviceConfirmation {
		m.input.Blur()
		return m, nil
	}
	return m, m.input.Focus()
}

func (m AuthModel) Hide() AuthModel {
	m.shown = false
	m.input.Blur()
	return m
}

func (m AuthModel) IsVisible() bool { return m.shown }

func (m AuthModel) SetSize(w, h int) AuthModel {
	m.width = w
	m.height = h
	return m
}

func (m AuthModel) Update(msg tea.Msg) (AuthModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			value := strings.TrimSpace(m.input.Value())
			if value == "" || m.step.Waiting {
				return m, nil
			}
			return m, func() tea.Msg { return authSubmitMsg{value: value} }
		case "ctrl+r":
			if m.step.Kind == auth.KindWaitCode && m.step.ResendIn == 0 && m.step.CodeInfo.HasNextType {
				return m, func() tea.Msg { return resendCodeMsg{} }
			}
			return m, nil
		case "ctrl+q":
			if m.step.Kind == auth.KindWaitPhoneNumber {
				return m, func() tea.Msg { return qrLoginMsg{} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m AuthModel) View() string {
	if !m.shown || m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := lipgloss.NewStyle().Bold(true).Foreground(highlightColor)
	b.WriteString(title.Render(stepTitle(m.step)))
	if m.account != "" {
		b.WriteString(noticeStyle.Render("  " + m.account))
	}
	b.WriteString("\n\n")

	if desc := stepDescription(m.step); desc != "" {
		b.WriteString(lipgloss.NewStyle().Width(authBoxWidth - 8).Render(desc))
		b.WriteString("\n\n")
	}

	switch {
	case m.step.Waiting:
	case m.step.Kind == auth.KindWaitOtherDeviceConfirmation:
		code, err := renderQR(m.step.Link)
		if err != nil {
			b.WriteString(errorStyle.Render(err.Error()))
		} else {
			b.WriteString(code)
		}
		b.WriteByte('\n')
	default:
		b.WriteString(m.input.View())
		b.WriteByte('\n')
	}

	if m.step.Error != "" {
		b.WriteString("\n" + errorStyle.Render(m.step.Error) + "\n")
	}
	if keys := stepKeys(m.step); keys != "" {
		b.WriteString("\n" + noticeStyle.Render(keys))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForegroundBlend(rainbowBlend...).
		Padding(1, 3).
		Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func stepTitle(step state.AuthStep) string {
	if step.Waiting {
		return "Connecting"
	}
	switch step.Kind {
	case auth.KindWaitPhoneNumber:
		return "Phone number"
	case auth.KindWaitCode:
		return "Login code"
	case auth.KindWaitPassword:
		return "Two-step verification"
	case auth.KindWaitRegistration:
		return "Sign up"
	case auth.KindWaitOtherDeviceConfirmation:
		return "Scan to log in"
	default:
		return "Log in"
	}
}

func stepDescription(step state.AuthStep) string {
	if step.Waiting {
		return "Waiting for Telegram..."
	}
	switch step.Kind {
	case auth.KindWaitPhoneNumber:
		return "Enter your phone number in international format."
	case auth.KindWaitCode:
		return codeDescription(step.CodeInfo, step.ResendIn)
	case auth.KindWaitPassword:
		if step.Hint != "" {
			return fmt.Sprintf("Your account is protected with a password (hint: %s).", step.Hint)
		}
		return "Your account is protected with a password."
	case auth.KindWaitRegistration:
		if step.Terms.Text != "" {
			return step.Terms.Text + "\n\nEnter your name to create an account."
		}
		return "Enter your name to create an account."
	case auth.KindWaitOtherDeviceConfirmation:
		return "Open Telegram on your phone, go to Settings > Devices > Link Desktop Device and scan this code."
	}
	return ""
}

func codeDescription(info backend.CodeInfo, resendIn int) string {
	var desc string
	switch info.Type {
	case backend.CodeTypeApp:
		desc = "We've sent the code to the Telegram app on your other device."
	case backend.CodeTypeCall, backend.CodeTypeFlashCall, backend.CodeTypeMissedCall:
		desc = fmt.Sprintf("We're calling %s.", info.PhoneNumber)
	default:
		desc = fmt.Sprintf("We've sent a code by %s to %s.", info.Type, info.PhoneNumber)
	}
	if !info.HasNextType {
		return desc
	}
	if resendIn > 0 {
		return fmt.Sprintf("%s\nYou can request a code by %s in %d:%02d.", desc, info.NextType, resendIn/60, resendIn%60)
	}
	return fmt.Sprintf("%s\nPress ctrl+r to get the code by %s.", desc, info.NextType)
}

func stepKeys(step state.AuthStep) string {
	switch {
	case step.Waiting:
		return "ctrl+c quit"
	case step.Kind == auth.KindWaitPhoneNumber:
		return "enter submit · ctrl+q log in with QR code · ctrl+c quit"
	case step.Kind == auth.KindWaitOtherDeviceConfirmation:
		return "ctrl+c quit"
	default:
		return "enter submit · ctrl+c quit"
	}
}
