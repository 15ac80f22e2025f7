package client

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/loop"
)

var ErrResendUnavailable = errors.New("code cannot be resent yet")

// authStep runs an authentication request. A failure is attached to the
// sub-state that was current when the request was made, provided it is still
// current when the failure arrives.
func (c *Client) authStep(what string, fn func(ctx context.Context) error) error {
	st, ok := c.state.(AuthState)
	if !ok {
		return ErrNotInAuth
	}
	sub := st.Sub

	loop.Go(c.loop, c.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, func(_ struct{}, err error) {
		if err == nil {
			return
		}
		c.logger.Info("Authentication step failed", zap.String("request", what), zap.Error(err))
		cur, ok := c.AuthSubState()
		if !ok || cur != sub {
			return
		}
		cur.SetError(errorMessage(err))
	})
	return nil
}

func (c *Client) SubmitPhoneNumber(phone string) error {
	return c.authStep("set_authentication_phone_number", func(ctx context.Context) error {
		return c.backend.SetAuthenticationPhoneNumber(ctx, phone)
	})
}

func (c *Client) SubmitCode(code string) error {
	return c.authStep("check_authentication_code", func(ctx context.Context) error {
		return c.backend.CheckAuthenticationCode(ctx, code)
	})
}

// ResendCode asks for the code by the next delivery method once the
// countdown of the current step has run out.
func (c *Client) ResendCode() error {
	if sub, ok := c.AuthSubState(); ok {
		if wc, ok := sub.(*auth.WaitCode); ok && !wc.ResendAvailable() {
			return ErrResendUnavailable
		}
	}
	return c.authStep("resend_authentication_code", c.backend.ResendAuthenticationCode)
}

func (c *Client) SubmitPassword(password string) error {
	return c.authStep("check_authentication_password", func(ctx context.Context) error {
		return c.backend.CheckAuthenticationPassword(ctx, password)
	})
}

func (c *Client) Register(firstName, lastName string) error {
	return c.authStep("register_user", func(ctx context.Context) error {
		return c.backend.RegisterUser(ctx, firstName, lastName)
	})
}

// RequestQRCode switches the login to confirmation from another device.
func (c *Client) RequestQRCode() error {
	return c.authStep("request_qr_code_authentication", c.backend.RequestQRCodeAuthentication)
}

// LogOut ends the account's session on the server. The client is removed
// once the backend reports it closed.
func (c *Client) LogOut() {
	c.call("log_out", c.backend.LogOut)
}

func errorMessage(err error) string {
	if be, ok := backend.AsError(err); ok {
		return be.Message
	}
	return err.Error()
}
