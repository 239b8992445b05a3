package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/ledger/domain"
)

// getBalance returns the account's current balance
func (s *Server) getBalance(c *gin.Context) {
	balance, err := s.queries.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFoundInReadModel) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": c.Param("id"),
		"balance":    balance,
	})
}

// getAccount returns the account's read model row
func (s *Server) getAccount(c *gin.Context) {
	account, err := s.queries.GetAccountDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFoundInReadModel) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, account)
}

// getHistory returns the account's full event stream
func (s *Server) getHistory(c *gin.Context) {
	events, err := s.queries.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// listAccounts returns the IDs of all known accounts
func (s *Server) listAccounts(c *gin.Context) {
	ids, err := s.queries.GetActiveAccountIDs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": ids})
}

// getTransactionsByUser returns a user's transactions, most recent first
func (s *Server) getTransactionsByUser(c *gin.Context) {
	events, err := s.queries.GetTransactionsByUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// getTransactionsByCorrelation returns the events of one logical transaction
func (s *Server) getTransactionsByCorrelation(c *gin.Context) {
	events, err := s.queries.GetTransactionsByCorrelation(c.Request.Context(), c.Param("correlationID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
