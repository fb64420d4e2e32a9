// Package inspect serves the codec over HTTP: decode wire text into a
// JSON view with a var_dump-style tree, encode JSON into wire text, and
// transcode between formats.
package inspect

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/Neumenon/pserial/internal/formats"
	"github.com/Neumenon/pserial/pserial"
)

// Handler serves the inspection endpoints. Its codec can be replaced
// while requests are in flight.
type Handler struct {
	formats atomic.Pointer[formats.Set]
	maxBody int64
	logger  *slog.Logger
}

// NewHandler creates a handler around codec. Request bodies larger than
// maxBody bytes are rejected.
func NewHandler(codec *pserial.Codec, maxBody int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{maxBody: maxBody, logger: logger}
	h.SetCodec(codec)
	return h
}

// SetCodec swaps the codec used by later requests.
func (h *Handler) SetCodec(codec *pserial.Codec) {
	h.formats.Store(formats.New(codec))
}

// DecodeResponse is the body of a successful /v1/decode.
type DecodeResponse struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
	Dump  string          `json:"dump"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// errorKind classifies err for clients. Unknown type tags are checked
// first since they also match ErrMalformedInput.
func errorKind(err error) string {
	switch {
	case errors.Is(err, pserial.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, pserial.ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, pserial.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, pserial.ErrUnknownStruct):
		return "unknown_struct"
	default:
		return "invalid_input"
	}
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	kind := errorKind(err)
	c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
}

// readBody reads the request body, failing with 413 past maxBody.
func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Kind: "too_large"})
			return nil, false
		}
		h.fail(c, http.StatusBadRequest, err)
		return nil, false
	}
	return body, true
}

// Decode handles POST /v1/decode.
func (h *Handler) Decode(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	v, err := h.formats.Load().Decode(formats.Native, body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	resp := DecodeResponse{Kind: v.Kind().String(), Dump: pserial.Dump(v)}
	if resp.Value, err = pserial.ToJSON(v); err != nil {
		// Non-finite doubles have no JSON form; the dump still shows them.
		h.logger.Debug("decode: value has no JSON form", "error", err)
		resp.Value = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, resp)
}

// Encode handles POST /v1/encode.
func (h *Handler) Encode(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	v, err := pserial.FromJSON(body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	out, err := h.formats.Load().Encode(formats.Native, v)
	if err != nil {
		h.fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.Data(http.StatusOK, formats.ContentType(formats.Native), out)
}

// Convert handles POST /v1/convert?from=<fmt>&to=<fmt>. Both default
// to the native format.
func (h *Handler) Convert(c *gin.Context) {
	from := c.DefaultQuery("from", formats.Native)
	to := c.DefaultQuery("to", formats.Native)

	set := h.formats.Load()
	for _, name := range []string{from, to} {
		if _, err := set.Lookup(name); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "unknown_format"})
			return
		}
	}

	body, ok := h.readBody(c)
	if !ok {
		return
	}
	v, err := set.Decode(from, body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	out, err := set.Encode(to, v)
	if err != nil {
		h.fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.Data(http.StatusOK, formats.ContentType(to), out)
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"formats": h.formats.Load().Names(),
	})
}
