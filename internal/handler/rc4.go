package handler

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/encryption"
	"github.com/rc4-stream-go/internal/errors"
	"github.com/rc4-stream-go/internal/fileio"
	"github.com/rc4-stream-go/internal/storage"
	"github.com/rc4-stream-go/internal/trace"
)

// KeyHeader carries a hex key for the raw transform endpoint
const KeyHeader = "X-RC4-Key"

// MaxOffset bounds how much key stream a single request may discard
const MaxOffset = 256 << 20

// RC4Handler serves the /api/rc4 routes
type RC4Handler struct {
	cfg     *config.Config
	journal storage.Journal
	maxBody int64
}

// NewRC4Handler creates the handler; journal may be a NopJournal
func NewRC4Handler(cfg *config.Config, journal storage.Journal) *RC4Handler {
	maxBody := int64(cfg.Scheme.MaxBodyMB) << 20
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	return &RC4Handler{cfg: cfg, journal: journal, maxBody: maxBody}
}

type textRequest struct {
	Key       string `json:"key"`
	KeyFormat string `json:"key_format"` // raw (default) or hex
	Text      string `json:"text"`
	Hex       string `json:"hex"`
}

func (h *RC4Handler) parseKey(material, format string) ([]byte, error) {
	policy := fileio.PolicyFromConfig(h.cfg.Key)
	policy.Format = fileio.KeyFormatRaw
	if format != "" {
		policy.Format = fileio.KeyFormat(format)
	}
	return fileio.ParseKey([]byte(material), policy)
}

func (h *RC4Handler) bind(c *gin.Context) (*textRequest, []byte, bool) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewBadRequestWithCause("invalid request body", err))
		return nil, nil, false
	}
	key, err := h.parseKey(req.Key, req.KeyFormat)
	if err != nil {
		RespondError(c, err)
		return nil, nil, false
	}
	return &req, key, true
}

// Encrypt turns {key, text} into {hex}
func (h *RC4Handler) Encrypt(c *gin.Context) {
	c.Request = c.Request.WithContext(trace.WithOperation(c.Request.Context(), "encrypt"))
	start := time.Now()

	req, key, ok := h.bind(c)
	if !ok {
		return
	}
	out, err := encryption.Transform(key, []byte(req.Text))
	if err != nil {
		RespondError(c, errors.NewInvalidKey("invalid key", err))
		return
	}

	h.record(c, key, "text", "hex", int64(len(out)), start)
	RespondSuccess(c, gin.H{"hex": strings.ToUpper(hex.EncodeToString(out))})
}

// Decrypt turns {key, hex} into {text}
func (h *RC4Handler) Decrypt(c *gin.Context) {
	c.Request = c.Request.WithContext(trace.WithOperation(c.Request.Context(), "decrypt"))
	start := time.Now()

	req, key, ok := h.bind(c)
	if !ok {
		return
	}
	data, err := hex.DecodeString(strings.TrimSpace(req.Hex))
	if err != nil {
		RespondError(c, errors.NewBadRequestWithCause("ciphertext is not valid hex", err))
		return
	}
	out, err := encryption.Transform(key, data)
	if err != nil {
		RespondError(c, errors.NewInvalidKey("invalid key", err))
		return
	}

	h.record(c, key, "hex", "text", int64(len(out)), start)
	RespondSuccess(c, gin.H{"text": string(out)})
}

// Transform applies the cipher to a raw request body.
// Query parameters: enc (rc4, rc4md5, rc4pbkdf2), offset (key stream position),
// size (total payload size for derived keys, defaults to offset plus body length).
// The key comes from the X-RC4-Key header or the key query parameter, hex encoded.
func (h *RC4Handler) Transform(c *gin.Context) {
	c.Request = c.Request.WithContext(trace.WithOperation(c.Request.Context(), "transform"))
	start := time.Now()

	material := c.GetHeader(KeyHeader)
	if material == "" {
		material = c.Query("key")
	}
	secret, err := h.parseKey(material, string(fileio.KeyFormatHex))
	if err != nil {
		RespondError(c, err)
		return
	}

	offset := int64(0)
	if s := c.Query("offset"); s != "" {
		if offset, err = strconv.ParseInt(s, 10, 64); err != nil || offset < 0 || offset > MaxOffset {
			RespondError(c, errors.NewBadRequest(fmt.Sprintf("invalid offset %q", s)))
			return
		}
	}

	// read everything first so a failed upload produces no output
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		RespondError(c, errors.NewBadRequestWithCause("failed to read request body", err))
		return
	}

	size := offset + int64(len(body))
	if s := c.Query("size"); s != "" {
		if size, err = strconv.ParseInt(s, 10, 64); err != nil || size < 0 {
			RespondError(c, errors.NewBadRequest(fmt.Sprintf("invalid size %q", s)))
			return
		}
	}
	flow, err := encryption.NewFlowEnc(secret, c.Query("enc"), size)
	if err != nil {
		if errors.Is(err, encryption.ErrInvalidKey) {
			RespondError(c, errors.NewInvalidKey("invalid key", err))
		} else {
			RespondError(c, errors.NewBadRequestWithCause("invalid encryption type", err))
		}
		return
	}
	if offset > 0 {
		if err := flow.SetPosition(offset); err != nil {
			RespondError(c, errors.NewBadRequestWithCause("invalid offset", err))
			return
		}
	}

	h.record(c, secret, "body", string(flow.GetEncType()), int64(len(body)), start)
	c.DataFromReader(http.StatusOK, int64(len(body)), "application/octet-stream",
		flow.EncryptReader(bytes.NewReader(body)), nil)
}

// Journal lists recent operations: GET /api/journal?limit=n
func (h *RC4Handler) Journal(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			RespondError(c, errors.NewBadRequest(fmt.Sprintf("invalid limit %q", s)))
			return
		}
		limit = n
	}

	entries, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, errors.NewInternalWithCause("failed to read journal", err))
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	RespondSuccess(c, gin.H{"entries": entries})
}

// Algorithms lists the registered key derivation schemes
func (h *RC4Handler) Algorithms(c *gin.Context) {
	RespondSuccess(c, gin.H{"algorithms": encryption.ListRegistered()})
}

func (h *RC4Handler) record(c *gin.Context, key []byte, source, target string, length int64, start time.Time) {
	ctx := c.Request.Context()
	err := h.journal.Record(ctx, storage.Entry{
		Time:           start,
		Origin:         "http",
		Source:         source,
		Target:         target,
		KeyFingerprint: storage.Fingerprint(key),
		Length:         length,
		Duration:       time.Since(start),
	})
	if err != nil {
		logger := trace.Logger(ctx)
		logger.Warn().Err(err).Msg("Failed to record journal entry")
	}
}
