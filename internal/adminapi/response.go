package adminapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/danmuck/walletlink/internal/consent"
	"github.com/danmuck/walletlink/internal/correlator"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/transport"
	"github.com/danmuck/walletlink/internal/wallet"
	"github.com/gin-gonic/gin"
)

var errBadRequest = errors.New("adminapi: bad request")

const (
	kindTransportUnavailable = "transport_unavailable"
	kindTimeout              = "timeout"
	kindRemote               = "remote_error"
	kindUserRejected         = "user_rejected"
	kindInvalid              = "invalid_request"
	kindRateLimited          = "rate_limited"
	kindCanceled             = "canceled"
	kindInternal             = "internal"
)

// response is the envelope every endpoint answers with.
type response struct {
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func writeOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{OK: true, Data: data})
}

func writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	body := response{OK: false, Kind: kind, Error: err.Error()}
	var remote *correlator.RemoteError
	if errors.As(err, &remote) && len(remote.Payload) > 0 {
		body.Data = remote.Payload
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, transport.ErrTransportUnavailable):
		return http.StatusServiceUnavailable, kindTransportUnavailable
	case errors.Is(err, correlator.ErrTimeout):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.Is(err, correlator.ErrRemote):
		return http.StatusBadGateway, kindRemote
	case errors.Is(err, consent.ErrUserRejected):
		return http.StatusForbidden, kindUserRejected
	case errors.Is(err, errBadRequest),
		errors.Is(err, envelope.ErrUnknownMethod),
		errors.Is(err, correlator.ErrInvalidTimeout),
		errors.Is(err, wallet.ErrNoReceiver):
		return http.StatusBadRequest, kindInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, kindCanceled
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, kindCanceled
	default:
		return http.StatusInternalServerError, kindInternal
	}
}
