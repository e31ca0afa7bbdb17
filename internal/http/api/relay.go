package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
	log "github.com/sirupsen/logrus"
)

// maxRequestBody caps the inbound envelope. Generation payloads may carry inline images.
const maxRequestBody = 32 << 20

// RelayHandler adapts HTTP requests to the relay Forwarder.
type RelayHandler struct {
	forwarder Forwarder
}

// Serve handles every method on the relay route.
func (h *RelayHandler) Serve(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodPost:
	default:
		c.JSON(http.StatusMethodNotAllowed, relay.ErrorBody{Error: relay.MsgMethodNotAllowed})
		return
	}

	raw, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody))
	if errRead != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(errRead, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, relay.ErrorBody{Error: http.StatusText(http.StatusRequestEntityTooLarge)})
			return
		}
		abortInternal(c, errRead)
		return
	}

	req, errParse := relay.ParseEnvelope(raw)
	if errParse != nil {
		abortInternal(c, errParse)
		return
	}
	if h.forwarder == nil {
		abortInternal(c, errors.New("relay forwarder not configured"))
		return
	}

	result, errForward := h.forwarder.Forward(c.Request.Context(), req)
	if errForward != nil {
		abortInternal(c, errForward)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}

func abortInternal(c *gin.Context, err error) {
	log.WithError(err).WithField("request_id", requestID(c)).Error("relay: request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, relay.ErrorBody{
		Error:   relay.MsgInternalError,
		Details: err.Error(),
	})
}
