package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/handlers"
)

// CreateAccountRequest is the request for opening an account
type CreateAccountRequest struct {
	AccountID string `json:"account_id" binding:"required,account_id"`
	UserID    string `json:"user_id" binding:"required"`
}

// AmountRequest is the request body for deposits and withdrawals
type AmountRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	UserID string  `json:"user_id" binding:"required"`
}

// TransferRequest is the request for moving money between two accounts
type TransferRequest struct {
	FromAccountID string  `json:"from_account_id" binding:"required,account_id"`
	ToAccountID   string  `json:"to_account_id" binding:"required,account_id"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	UserID        string  `json:"user_id" binding:"required"`
}

// ReplayRequest triggers an on-demand replay. An empty account ID replays
// every account in the read model.
type ReplayRequest struct {
	AccountID string    `json:"account_id"`
	Since     time.Time `json:"since"`
	Force     bool      `json:"force"`
}

// respondCommandError maps domain errors to HTTP status codes
func respondCommandError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidEvent):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateAccount),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrOutOfOrderEvent):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAccountNotFoundInReadModel):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Command failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// createAccount opens a new account
func (s *Server) createAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := handlers.CreateAccountCommand{AccountID: req.AccountID, UserID: req.UserID}
	if err := s.commands.HandleCreateAccount(c.Request.Context(), cmd); err != nil {
		respondCommandError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account_id": req.AccountID})
}

// deposit adds money to an account
func (s *Server) deposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := handlers.DepositCommand{
		AccountID: c.Param("id"),
		Amount:    req.Amount,
		UserID:    req.UserID,
	}
	if err := s.commands.HandleDeposit(c.Request.Context(), cmd); err != nil {
		respondCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deposit accepted"})
}

// withdraw removes money from an account
func (s *Server) withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := handlers.WithdrawCommand{
		AccountID: c.Param("id"),
		Amount:    req.Amount,
		UserID:    req.UserID,
	}
	if err := s.commands.HandleWithdraw(c.Request.Context(), cmd); err != nil {
		respondCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "withdrawal accepted"})
}

// transfer moves money between two accounts atomically
func (s *Server) transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FromAccountID == req.ToAccountID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot transfer to the same account"})
		return
	}

	cmd := handlers.TransferCommand{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		UserID:        req.UserID,
	}
	if err := s.commands.HandleTransfer(c.Request.Context(), cmd); err != nil {
		respondCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "transfer accepted"})
}

// replayEvents replays stored events into the read model
func (s *Server) replayEvents(c *gin.Context) {
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	accountIDs := []string{req.AccountID}
	if req.AccountID == "" {
		ids, err := s.queries.GetActiveAccountIDs(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		accountIDs = ids
	}

	replayErrors := make(map[string]string)
	for _, accountID := range accountIDs {
		if err := s.worker.Replay(ctx, accountID, req.Since, req.Force); err != nil {
			replayErrors[accountID] = err.Error()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": len(accountIDs),
		"errors":   replayErrors,
	})
}
