package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
	u "github.com/jihoonkang/account-api/internal/utils"
)

const codeInvalidRequest = "INVALID_REQUEST"

// writeServiceError maps a service failure to an HTTP response. Business
// failures keep their code in the body; anything else is an infrastructure
// fault and stays opaque to the caller.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, operation string) {
	code, ok := errors.CodeOf(err)
	if !ok {
		logger.Error("internal server error during "+operation, zap.Error(err))
		u.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	status := http.StatusBadRequest
	switch code {
	case errors.CodeOwnerNotFound, errors.CodeAccountNotFound, errors.CodeTransactionNotFound:
		status = http.StatusNotFound
	case errors.CodeAccountLocked:
		status = http.StatusConflict
	}
	u.WriteError(w, status, string(code), err.Error())
}
