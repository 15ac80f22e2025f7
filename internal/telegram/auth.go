package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
)

var errNoCodePending = &backend.Error{Code: 400, Message: "PHONE_CODE_HASH_EMPTY"}

func (b *Backend) SetAuthenticationPhoneNumber(ctx context.Context, phone string) error {
	client, err := b.connected(ctx)
	if err != nil {
		return err
	}
	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return requestError(err)
	}
	return b.onSentCode(phone, sent)
}

func (b *Backend) onSentCode(phone string, sent tg.AuthSentCodeClass) error {
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		b.mu.Lock()
		b.phone, b.codeHash = phone, s.PhoneCodeHash
		b.mu.Unlock()
		b.emitAuth(backend.AuthorizationStateWaitCode{CodeInfo: convertCodeInfo(phone, s)})
		return nil
	case *tg.AuthSentCodeSuccess:
		b.markAuthorized()
		return nil
	default:
		return errors.Errorf("unexpected sent code %T", sent)
	}
}

func (b *Backend) pendingCode() (phone, hash string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phone, b.codeHash, b.codeHash != ""
}

func (b *Backend) CheckAuthenticationCode(ctx context.Context, code string) error {
	client, err := b.connected(ctx)
	if err != nil {
		return err
	}
	phone, hash, ok := b.pendingCode()
	if !ok {
		return errNoCodePending
	}

	_, err = client.Auth().SignIn(ctx, phone, code, hash)
	var signUp *auth.SignUpRequired
	switch {
	case err == nil:
		b.markAuthorized()
		return nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return b.askPassword(ctx, client.API())
	case errors.As(err, &signUp):
		tos := signUp.TermsOfService
		minAge, _ := tos.GetMinAgeConfirm()
		b.emitAuth(backend.AuthorizationStateWaitRegistration{TermsOfService: backend.TermsOfService{
			Text:       tos.Text,
			MinUserAge: minAge,
			ShowPopup:  tos.Popup,
		}})
		return nil
	default:
		return requestError(err)
	}
}

func (b *Backend) askPassword(ctx context.Context, api *tg.Client) error {
	pw, err := api.AccountGetPassword(ctx)
	if err != nil {
		return requestError(err)
	}
	b.emitAuth(backend.AuthorizationStateWaitPassword{
		Hint:                 pw.Hint,
		HasRecoveryEmail:     pw.HasRecovery,
		RecoveryEmailPattern: pw.EmailUnconfirmedPattern,
	})
	return nil
}

func (b *Backend) ResendAuthenticationCode(ctx context.Context) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	phone, hash, ok := b.pendingCode()
	if !ok {
		return errNoCodePending
	}
	sent, err := api.AuthResendCode(ctx, &tg.AuthResendCodeRequest{
		PhoneNumber:   phone,
		PhoneCodeHash: hash,
	})
	if err != nil {
		return requestError(err)
	}
	return b.onSentCode(phone, sent)
}

func (b *Backend) CheckAuthenticationPassword(ctx context.Context, password string) error {
	client, err := b.connected(ctx)
	if err != nil {
		return err
	}
	_, err = client.Auth().Password(ctx, password)
	switch {
	case err == nil:
		b.markAuthorized()
		return nil
	case errors.Is(err, auth.ErrPasswordInvalid):
		return &backend.Error{Code: 400, Message: "PASSWORD_HASH_INVALID"}
	default:
		return requestError(err)
	}
}

func (b *Backend) RegisterUser(ctx context.Context, firstName, lastName string) error {
	client, err := b.connected(ctx)
	if err != nil {
		return err
	}
	phone, hash, ok := b.pendingCode()
	if !ok {
		return errNoCodePending
	}
	_, err = client.Auth().SignUp(ctx, auth.SignUp{
		PhoneNumber:   phone,
		PhoneCodeHash: hash,
		FirstName:     firstName,
		LastName:      lastName,
	})
	if err != nil {
		return requestError(err)
	}
	b.markAuthorized()
	return nil
}

// RequestQRCodeAuthentication starts a QR login in the background. Every
// fresh token is reported as a confirmation link; an expired login falls
// back to asking for the phone number.
func (b *Backend) RequestQRCodeAuthentication(ctx context.Context) error {
	client, err := b.connected(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	runCtx := b.runCtx
	b.mu.Unlock()

	loggedIn := qrlogin.OnLoginToken(b.dispatcher)
	go func() {
		_, err := client.QR().Auth(runCtx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			b.emitAuth(backend.AuthorizationStateWaitOtherDeviceConfirmation{Link: token.URL()})
			return nil
		})
		switch {
		case err == nil:
			b.markAuthorized()
		case passwordNeeded(err):
			if err := b.askPassword(runCtx, client.API()); err != nil {
				b.logger.Warn("Failed to request password", zap.Error(err))
			}
		case runCtx.Err() != nil:
		default:
			b.logger.Warn("QR login failed", zap.Error(err))
			b.emitAuth(backend.AuthorizationStateWaitPhoneNumber{})
		}
	}()
	return nil
}

func passwordNeeded(err error) bool {
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return true
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return rpcErr.IsOneOf("SESSION_PASSWORD_NEEDED")
	}
	return false
}
