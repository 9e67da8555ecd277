package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/models"
	"github.com/jihoonkang/account-api/internal/service"
	u "github.com/jihoonkang/account-api/internal/utils"
)

type AccountHandler struct {
	accountService service.AccountService
	validate       *validator.Validate
	logger         *zap.Logger
}

func NewAccountHandler(accountService service.AccountService, validate *validator.Validate, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		validate:       validate,
		logger:         logger,
	}
}

func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/account", h.CreateAccount).Methods(http.MethodPost)
	router.HandleFunc("/account", h.DeleteAccount).Methods(http.MethodDelete)
	router.HandleFunc("/account", h.ListAccounts).Methods(http.MethodGet).Queries("user_id", "{user_id}")
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid create account request", zap.Error(err))
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), req.UserID, req.InitialBalance)
	if err != nil {
		writeServiceError(w, h.logger, err, "create account")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.CreateAccountResponse{
		UserID:        account.OwnerID,
		AccountNumber: account.AccountNumber,
		RegisteredAt:  account.RegisteredAt,
	})
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid delete account request", zap.Error(err))
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	account, err := h.accountService.CloseAccount(r.Context(), req.UserID, req.AccountNumber)
	if err != nil {
		writeServiceError(w, h.logger, err, "close account")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.DeleteAccountResponse{
		UserID:         account.OwnerID,
		AccountNumber:  account.AccountNumber,
		UnregisteredAt: account.UnregisteredAt,
	})
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		u.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "user_id must be an integer")
		return
	}

	accounts, err := h.accountService.ListAccounts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list accounts")
		return
	}

	infos := make([]models.AccountInfo, 0, len(accounts))
	for _, account := range accounts {
		infos = append(infos, models.AccountInfo{
			AccountNumber: account.AccountNumber,
			Balance:       account.Balance,
		})
	}
	u.WriteJSON(w, http.StatusOK, infos)
}
