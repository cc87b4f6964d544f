package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	led *Ledger
}

func NewHandler(led *Ledger) *Handler {
	return &Handler{led: led}
}

type userRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type topupRequest struct {
	UserID string `json:"userId" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// POST /init  body: {userId}
// Creates the account with the starting balance if absent.
func (h *Handler) Init(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "userId required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.led.GetBalance(req.UserID)})
}

// POST /balance  body: {userId}
func (h *Handler) Balance(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "userId required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.led.GetBalance(req.UserID)})
}

// GET /history/:userId
func (h *Handler) History(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "userId required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": h.led.GetHistory(userID)})
}

// POST /topup  body: {userId, amount}
// Topups are an external ledger client with their own round id namespace,
// so they can never collide with a game session's round.
func (h *Handler) Topup(c *gin.Context) {
	var req topupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad args"})
		return
	}
	roundID := fmt.Sprintf("topup_%d", time.Now().UnixNano())
	balance, err := h.led.Credit(req.UserID, roundID, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad args"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": balance})
}
