package telegram

import (
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
)

// Factory opens gotd backends for account slots.
func Factory(logger *zap.Logger) backend.Factory {
	logger = logger.Named("telegram")
	return func(slot account.Slot, handler backend.UpdateHandler) (backend.Backend, error) {
		return Open(slot, handler, logger), nil
	}
}
