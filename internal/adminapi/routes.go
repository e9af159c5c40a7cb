package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/danmuck/walletlink/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxTimeout caps timeout_ms on raw invokes.
const maxTimeout = 10 * time.Minute

type invokeRequest struct {
	Method    string        `json:"method"`
	Args      envelope.Args `json:"args"`
	TimeoutMS int64         `json:"timeout_ms"`
}

type signMessageRequest struct {
	Message     string `json:"message"`
	Recipient   string `json:"recipient"`
	Nonce       []int  `json:"nonce"`
	CallbackURL string `json:"callbackUrl"`
	State       string `json:"state"`
}

func (s *Server) registerRoutes(limiter *ipLimiter) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1", limiter.middleware())
	v1.GET("/accounts", s.handleAccounts)
	v1.GET("/pending", s.handlePending)
	v1.POST("/invoke", s.handleInvoke)
	v1.POST("/sign-in", s.handleSignIn)
	v1.POST("/sign-out", s.handleSignOut)
	v1.POST("/sign-message", s.handleSignMessage)
	v1.POST("/transactions", s.handleTransaction)
	v1.POST("/transactions/batch", s.handleTransactions)
}

func (s *Server) handleHealth(c *gin.Context) {
	route := transport.ChannelNone
	if s.deps.Router != nil {
		route = s.deps.Router.Route()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"node":    s.cfg.Node,
		"channel": route,
		"ready":   route != transport.ChannelNone,
	})
}

func (s *Server) handleAccounts(c *gin.Context) {
	accounts, err := s.deps.Wallet.GetAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, accounts)
}

func (s *Server) handlePending(c *gin.Context) {
	if s.deps.Invoker == nil {
		writeOK(c, []any{})
		return
	}
	writeOK(c, s.deps.Invoker.Pending())
}

func (s *Server) handleInvoke(c *gin.Context) {
	if s.deps.Invoker == nil {
		c.JSON(http.StatusNotImplemented, response{OK: false, Kind: kindInternal, Error: "adminapi: raw invoke disabled"})
		return
	}
	var req invokeRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	method, err := envelope.ParseMethod(req.Method)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.TimeoutMS < 0 || req.TimeoutMS > maxTimeout.Milliseconds() {
		writeError(c, fmt.Errorf("%w: timeout_ms out of range", errBadRequest))
		return
	}
	payload, err := s.deps.Invoker.Invoke(c.Request.Context(), method, req.Args, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, payload)
}

func (s *Server) handleSignIn(c *gin.Context) {
	var params wallet.SignInParams
	if err := bindJSON(c, &params); err != nil {
		writeError(c, err)
		return
	}
	accounts, err := s.deps.Wallet.SignIn(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, accounts)
}

func (s *Server) handleSignOut(c *gin.Context) {
	if err := s.deps.Wallet.SignOut(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, nil)
}

func (s *Server) handleSignMessage(c *gin.Context) {
	var req signMessageRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	nonce := make([]byte, len(req.Nonce))
	for i, v := range req.Nonce {
		if v < 0 || v > 255 {
			writeError(c, fmt.Errorf("%w: nonce[%d] is not a byte", errBadRequest, i))
			return
		}
		nonce[i] = byte(v)
	}
	signed, err := s.deps.Wallet.SignMessage(c.Request.Context(), wallet.SignMessageParams{
		Message:     req.Message,
		Recipient:   req.Recipient,
		Nonce:       nonce,
		CallbackURL: req.CallbackURL,
		State:       req.State,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, signed)
}

func (s *Server) handleTransaction(c *gin.Context) {
	var tx wallet.Transaction
	if err := bindJSON(c, &tx); err != nil {
		writeError(c, err)
		return
	}
	outcome, err := s.deps.Wallet.SignAndSendTransaction(c.Request.Context(), tx)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, outcome)
}

func (s *Server) handleTransactions(c *gin.Context) {
	var params wallet.SignAndSendTransactionsParams
	if err := bindJSON(c, &params); err != nil {
		writeError(c, err)
		return
	}
	outcomes, err := s.deps.Wallet.SignAndSendTransactions(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, outcomes)
}

// bindJSON decodes the body keeping numbers as json.Number so large amounts
// survive untouched. An empty body leaves v at its zero value.
func bindJSON(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
