package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/auth"
	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
	"github.com/Spok95/temny-shop/internal/infra/payments"
	"github.com/Spok95/temny-shop/internal/shop"
	"github.com/Spok95/temny-shop/web"
)

const (
	InitDataHeader = "X-Telegram-Init-Data"
	initDataMaxAge = 24 * time.Hour
)

type Options struct {
	BotToken        string
	RequireInitData bool
	WebhookSecret   string
	Currency        string
	IndexFile       string
}

type Handler struct {
	svc  *shop.Service
	auth *auth.Service
	pay  http.Handler
	log  *slog.Logger
	opts Options
	now  func() time.Time
}

func NewHandler(svc *shop.Service, authSvc *auth.Service, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		svc:  svc,
		auth: authSvc,
		pay:  payments.NewHandler(log, svc),
		log:  log,
		opts: opts,
		now:  time.Now,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	if h.opts.IndexFile != "" {
		r.GET("/", func(c *gin.Context) { c.File(h.opts.IndexFile) })
	} else {
		r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", web.Index) })
	}
	r.GET("/products", h.listProducts)
	r.GET("/get_balance", h.getBalance)
	r.POST("/buy_product", h.buyProduct)
	r.POST("/create_payment", h.createPayment)
	r.POST("/tribute_webhook", h.tributeWebhook)
	if h.svc.TestPayments() {
		r.GET("/payments/pay", gin.WrapH(h.pay))
	}

	r.POST("/admin/login", h.adminLogin)
	admin := r.Group("/admin", h.requireAdmin)
	admin.POST("/add_accounts", h.addAccounts)
}

type productDTO struct {
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Category string  `json:"category"`
}

func (h *Handler) listProducts(c *gin.Context) {
	items, err := h.svc.Store().Catalog.List(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	out := lo.SliceToMap(items, func(p products.Product) (string, productDTO) {
		return p.Name, productDTO{
			Price:    p.Price.InexactFloat64(),
			Stock:    max(p.Stock, 0),
			Category: p.Category,
		}
	})
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a positive integer"})
		return
	}
	if !h.checkUser(c, userID) {
		return
	}
	bal, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": bal.InexactFloat64()})
}

type buyRequest struct {
	TelegramUserID int64            `json:"telegram_user_id" binding:"required,gt=0"`
	ProductName    string           `json:"product_name" binding:"required"`
	Price          *decimal.Decimal `json:"price" binding:"required"`
	RequestID      string           `json:"request_id"`
}

func (h *Handler) buyProduct(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.checkUser(c, req.TelegramUserID) {
		return
	}

	o, err := h.svc.Buy(c.Request.Context(), shop.BuyRequest{
		TelegramID:  req.TelegramUserID,
		ProductName: strings.TrimSpace(req.ProductName),
		Price:       *req.Price,
		RequestID:   req.RequestID,
	})
	if err != nil {
		h.buyError(c, o, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"order_id":   o.ID,
		"request_id": o.RequestID,
		"replayed":   o.Replayed,
		"balance":    o.Balance.InexactFloat64(),
		"message":    "Данные аккаунта отправлены в чат с ботом",
	})
}

func (h *Handler) buyError(c *gin.Context, o *orders.Order, err error) {
	switch {
	case errors.Is(err, shop.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, users.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
	case errors.Is(err, products.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, products.ErrPriceChanged):
		c.JSON(http.StatusConflict, gin.H{"error": "price changed"})
	case errors.Is(err, accounts.ErrUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "no accounts available"})
	case errors.Is(err, orders.ErrRequestIDReused):
		c.JSON(http.StatusConflict, gin.H{"error": "request_id already used"})
	case errors.Is(err, shop.ErrDeliveryFailed):
		body := gin.H{"error": "delivery failed, payment refunded"}
		if o != nil {
			body["order_id"] = o.ID
			body["balance"] = o.Balance.InexactFloat64()
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		h.internal(c, err)
	}
}

type paymentRequest struct {
	TelegramUserID int64            `json:"telegram_user_id" binding:"required,gt=0"`
	Amount         *decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) createPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.checkUser(c, req.TelegramUserID) {
		return
	}
	p, err := h.svc.CreatePayment(c.Request.Context(), req.TelegramUserID, *req.Amount)
	if errors.Is(err, shop.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice_id": p.Invoice.ID,
		"provider":   p.Invoice.Provider,
		"pay_url":    p.PayURL,
	})
}

func (h *Handler) tributeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	if err := payments.VerifySignature(h.opts.WebhookSecret, body, c.GetHeader(payments.SignatureHeader)); err != nil {
		h.log.Warn("webhook signature rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad signature"})
		return
	}

	n, err := payments.ParseTribute(body, h.opts.Currency)
	if errors.Is(err, payments.ErrIgnoredEvent) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if errors.Is(err, payments.ErrCurrency) {
		h.log.Warn("webhook in unexpected currency", "err", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.svc.CreditExternal(c.Request.Context(), n)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "credited": st.Credited})
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := h.auth.IssueToken(req.Login, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

func (h *Handler) requireAdmin(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	if _, err := h.auth.VerifyToken(strings.TrimSpace(raw)); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

type addAccountsRequest struct {
	ProductName  string `json:"product_name" binding:"required"`
	AccountsText string `json:"accounts_text" binding:"required"`
}

func (h *Handler) addAccounts(c *gin.Context) {
	var req addAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.AddAccounts(c.Request.Context(), strings.TrimSpace(req.ProductName), req.AccountsText)
	switch {
	case errors.Is(err, shop.ErrNoCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid login:password lines", "rejected": res.Rejected})
		return
	case errors.Is(err, products.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	case err != nil:
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"added":    res.Added,
		"skipped":  res.Skipped,
		"rejected": lo.Ternary(res.Rejected == nil, []string{}, res.Rejected),
	})
}

// checkUser при включённой проверке сверяет подписанный Telegram id с запрошенным.
func (h *Handler) checkUser(c *gin.Context, userID int64) bool {
	if !h.opts.RequireInitData {
		return true
	}
	signed, err := verifyInitData(c.GetHeader(InitDataHeader), h.opts.BotToken, initDataMaxAge, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return false
	}
	if signed != userID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
		return false
	}
	return true
}

func (h *Handler) internal(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
