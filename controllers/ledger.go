package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cache"
	"github.com/gin-contrib/cache/persistence"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/daccred/library-ledger/handlers"
	"github.com/daccred/library-ledger/models"
)

// LedgerController exposes ledger state read-only, plus a manual mining trigger.
type LedgerController struct {
	orchestrator   *handlers.Orchestrator
	mineLimiter    *rate.Limiter
	verifyCacheTTL time.Duration
}

func NewLedgerController(orchestrator *handlers.Orchestrator, mineLimiter *rate.Limiter, verifyCacheTTL time.Duration) *LedgerController {
	if mineLimiter == nil {
		mineLimiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &LedgerController{orchestrator: orchestrator, mineLimiter: mineLimiter, verifyCacheTTL: verifyCacheTTL}
}

func (lc *LedgerController) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", lc.HealthCheck)
	r.GET("/status", lc.GetStatus)
	r.GET("/blocks", lc.GetBlocks)
	r.GET("/blocks/:index", lc.GetBlock)
	r.POST("/mine", lc.Mine)

	if lc.verifyCacheTTL > 0 {
		store := persistence.NewInMemoryStore(lc.verifyCacheTTL)
		r.GET("/verify", cache.CachePage(store, lc.verifyCacheTTL, lc.Verify))
	} else {
		r.GET("/verify", lc.Verify)
	}

	txs := r.Group("/transactions")
	{
		txs.GET("/pending", lc.GetPending)
		txs.GET("/user/:id", lc.GetForUser)
		txs.GET("/book/:id", lc.GetForBook)
		txs.GET("/type/:type", lc.GetByType)
	}
}

func (lc *LedgerController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (lc *LedgerController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, lc.orchestrator.Status())
}

func (lc *LedgerController) GetBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, lc.orchestrator.Chain())
}

func (lc *LedgerController) GetBlock(c *gin.Context) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Block index must be an integer"})
		return
	}
	block, err := lc.orchestrator.Block(index)
	if errors.Is(err, handlers.ErrBlockNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Block not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch block"})
		return
	}
	c.JSON(http.StatusOK, block)
}

func (lc *LedgerController) GetPending(c *gin.Context) {
	c.JSON(http.StatusOK, lc.orchestrator.PendingTransactions())
}

func (lc *LedgerController) GetForUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lc.orchestrator.TransactionsForUser(id))
}

func (lc *LedgerController) GetForBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lc.orchestrator.TransactionsForBook(id))
}

func (lc *LedgerController) GetByType(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown transaction type"})
		return
	}
	c.JSON(http.StatusOK, lc.orchestrator.TransactionsByType(kind))
}

func (lc *LedgerController) Mine(c *gin.Context) {
	if !lc.mineLimiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Mining requested too often"})
		return
	}
	_, mined := lc.orchestrator.MinePending()
	c.JSON(http.StatusOK, gin.H{"mined": mined, "blockCount": lc.orchestrator.BlockCount()})
}

func (lc *LedgerController) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isValid": lc.orchestrator.IsChainValid()})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Id must be an integer"})
		return 0, false
	}
	return id, true
}
