package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/lock"
	"github.com/jihoonkang/account-api/internal/models"
	"github.com/jihoonkang/account-api/internal/service"
	u "github.com/jihoonkang/account-api/internal/utils"
)

type TransactionHandler struct {
	transactionService service.TransactionService
	locker             lock.AccountLocker
	validate           *validator.Validate
	logger             *zap.Logger
}

func NewTransactionHandler(transactionService service.TransactionService, locker lock.AccountLocker, validate *validator.Validate, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		locker:             locker,
		validate:           validate,
		logger:             logger,
	}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/transaction/use", h.UseBalance).Methods(http.MethodPost)
	router.HandleFunc("/transaction/cancel", h.CancelBalance).Methods(http.MethodPost)
	router.HandleFunc("/transaction/{transactionId}", h.QueryTransaction).Methods(http.MethodGet)
}

func (h *TransactionHandler) UseBalance(w http.ResponseWriter, r *http.Request) {
	var req models.UseBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid use balance request", zap.Error(err))
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	release, err := h.locker.Acquire(r.Context(), req.AccountNumber)
	if err != nil {
		writeServiceError(w, h.logger, err, "lock account")
		return
	}
	defer release()

	result, err := h.transactionService.UseBalance(r.Context(), req.UserID, req.AccountNumber, req.Amount)
	if err != nil {
		// Failed attempts still leave an audit row; the processor only
		// signals the failure, recording it is this boundary's job.
		if errors.IsBusiness(err) {
			if recordErr := h.transactionService.RecordFailedUse(r.Context(), req.AccountNumber, req.Amount); recordErr != nil {
				h.logger.Error("failed to record failed use",
					zap.String("account_number", req.AccountNumber),
					zap.Error(recordErr),
				)
			}
		}
		writeServiceError(w, h.logger, err, "use balance")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.TransactionResponse{
		AccountNumber:     result.AccountNumber,
		TransactionResult: result.Result,
		TransactionID:     result.TransactionID,
		Amount:            result.Amount,
		TransactedAt:      result.TransactedAt,
	})
}

func (h *TransactionHandler) CancelBalance(w http.ResponseWriter, r *http.Request) {
	var req models.CancelBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid cancel balance request", zap.Error(err))
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	release, err := h.locker.Acquire(r.Context(), req.AccountNumber)
	if err != nil {
		writeServiceError(w, h.logger, err, "lock account")
		return
	}
	defer release()

	result, err := h.transactionService.CancelBalance(r.Context(), req.TransactionID, req.AccountNumber, req.Amount)
	if err != nil {
		if errors.IsBusiness(err) {
			if recordErr := h.transactionService.RecordFailedCancel(r.Context(), req.AccountNumber, req.Amount); recordErr != nil {
				h.logger.Error("failed to record failed cancel",
					zap.String("account_number", req.AccountNumber),
					zap.Error(recordErr),
				)
			}
		}
		writeServiceError(w, h.logger, err, "cancel balance")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.TransactionResponse{
		AccountNumber:     result.AccountNumber,
		TransactionResult: result.Result,
		TransactionID:     result.TransactionID,
		Amount:            result.Amount,
		TransactedAt:      result.TransactedAt,
	})
}

func (h *TransactionHandler) QueryTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := mux.Vars(r)["transactionId"]
	if transactionID == "" {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "transactionId is required")
		return
	}

	result, err := h.transactionService.QueryTransaction(r.Context(), transactionID)
	if err != nil {
		writeServiceError(w, h.logger, err, "query transaction")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.QueryTransactionResponse{
		AccountNumber:     result.AccountNumber,
		TransactionType:   result.Type,
		TransactionResult: result.Result,
		TransactionID:     result.TransactionID,
		Amount:            result.Amount,
		TransactedAt:      result.TransactedAt,
	})
}
