package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/rc4-stream-go/internal/auth"
	"github.com/rc4-stream-go/internal/cache"
	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/dao"
	"github.com/rc4-stream-go/internal/errors"
	"github.com/rc4-stream-go/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Key: config.KeyConfig{
			MaxSize:  256,
			Overflow: config.OverflowReject,
			Format:   config.KeyFormatRaw,
		},
		Scheme: config.SchemeConfig{MaxBodyMB: 1},
	}
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newRouter(h *RC4Handler) *gin.Engine {
	r := gin.New()
	r.POST("/api/rc4/encrypt", h.Encrypt)
	r.POST("/api/rc4/decrypt", h.Decrypt)
	r.POST("/api/rc4/transform", h.Transform)
	r.GET("/api/rc4/algorithms", h.Algorithms)
	r.GET("/api/journal", h.Journal)
	return r
}

func do(r http.Handler, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r http.Handler, target string, v interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return do(r, http.MethodPost, target, bytes.NewReader(b), map[string]string{"Content-Type": "application/json"})
}

type dataResponse struct {
	Code int               `json:"code"`
	Msg  string            `json:"msg"`
	Data map[string]interface{} `json:"data"`
}

func (r dataResponse) str(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dataResponse {
	t.Helper()
	var resp dataResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return resp
}

// TestRespondError tests error response helper
func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{
			name:       "bad request",
			err:        errors.NewBadRequest("invalid input"),
			wantStatus: http.StatusBadRequest,
			wantCode:   400,
		},
		{
			name:       "not found",
			err:        errors.NewNotFound("resource not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   404,
		},
		{
			name:       "invalid key",
			err:        errors.NewInvalidKey("key file is empty", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   520,
		},
		{
			name:       "internal error",
			err:        errors.NewInternalWithCause("something broke", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   500,
		},
		{
			name:       "plain error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			RespondError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !c.IsAborted() {
				t.Error("context not aborted")
			}

			var resp APIResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.Code, tt.wantCode)
			}
		})
	}
}

// TestRespondSuccess tests success response helpers
func TestRespondSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondSuccess(c, map[string]string{"key": "value"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decode(t, w)
	if resp.Code != 0 || resp.str("key") != "value" {
		t.Errorf("response = %+v", resp)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondSuccessMsg(c, "done")
	if resp := decode(t, w); resp.Code != 0 || resp.Msg != "done" {
		t.Errorf("response = %+v", resp)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	r := newRouter(NewRC4Handler(testConfig(), storage.NopJournal{}))

	tests := []struct {
		name   string
		key    string
		format string
		text   string
		want   string
	}{
		{"key", "Key", "", "Plaintext", "BBF316E8D940AF0AD3"},
		{"wiki", "Wiki", "raw", "pedia", "1021BF0420"},
		{"secret", "Secret", "", "Attack at dawn", "45A01F645FC35B383552544B9BF5"},
		{"hex key", "0102030405", "hex", "Plaintext", "E255026C9E49A55FB8"},
		{"empty text", "Key", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/rc4/encrypt", textRequest{Key: tt.key, KeyFormat: tt.format, Text: tt.text})
			if w.Code != http.StatusOK {
				t.Fatalf("encrypt status = %d: %s", w.Code, w.Body.String())
			}
			if got := decode(t, w).str("hex"); got != tt.want {
				t.Errorf("hex = %q, want %q", got, tt.want)
			}

			w = postJSON(r, "/api/rc4/decrypt", textRequest{Key: tt.key, KeyFormat: tt.format, Hex: strings.ToLower(tt.want)})
			if w.Code != http.StatusOK {
				t.Fatalf("decrypt status = %d: %s", w.Code, w.Body.String())
			}
			if got := decode(t, w).str("text"); got != tt.text {
				t.Errorf("text = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestEncryptErrors(t *testing.T) {
	r := newRouter(NewRC4Handler(testConfig(), storage.NopJournal{}))

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"empty key", "/api/rc4/encrypt", `{"key":"","text":"x"}`, int(errors.ErrCodeInvalidKey)},
		{"oversize key", "/api/rc4/encrypt", `{"key":"` + strings.Repeat("k", 257) + `","text":"x"}`, int(errors.ErrCodeInvalidKey)},
		{"bad hex key", "/api/rc4/encrypt", `{"key":"zz","key_format":"hex","text":"x"}`, int(errors.ErrCodeInvalidKey)},
		{"bad json", "/api/rc4/encrypt", `{"key":`, int(errors.ErrCodeBadRequest)},
		{"bad ciphertext", "/api/rc4/decrypt", `{"key":"Key","hex":"xyz"}`, int(errors.ErrCodeBadRequest)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, strings.NewReader(tt.body), map[string]string{"Content-Type": "application/json"})
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if got := decode(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestTransform(t *testing.T) {
	r := newRouter(NewRC4Handler(testConfig(), storage.NopJournal{}))
	want := []byte{0xBB, 0xF3, 0x16, 0xE8, 0xD9, 0x40, 0xAF, 0x0A, 0xD3}

	w := do(r, http.MethodPost, "/api/rc4/transform", strings.NewReader("Plaintext"), map[string]string{KeyHeader: "4b6579"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff(want, w.Body.Bytes()); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	// the key stream continues from offset 3
	w = do(r, http.MethodPost, "/api/rc4/transform?key=4b6579&offset=3", strings.NewReader("intext"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff(want[3:], w.Body.Bytes()); diff != "" {
		t.Errorf("offset body mismatch (-want +got):\n%s", diff)
	}

	// derived keys round trip
	for _, enc := range []string{"rc4md5", "rc4pbkdf2"} {
		target := "/api/rc4/transform?key=736563726574&enc=" + enc
		w = do(r, http.MethodPost, target, strings.NewReader("hello world"), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", enc, w.Code)
		}
		w = do(r, http.MethodPost, target, bytes.NewReader(w.Body.Bytes()), nil)
		if got := w.Body.String(); got != "hello world" {
			t.Errorf("%s round trip = %q", enc, got)
		}
	}
}

func TestTransformErrors(t *testing.T) {
	r := newRouter(NewRC4Handler(testConfig(), storage.NopJournal{}))

	tests := []struct {
		name     string
		target   string
		body     io.Reader
		wantCode int
	}{
		{"missing key", "/api/rc4/transform", strings.NewReader("x"), int(errors.ErrCodeInvalidKey)},
		{"bad offset", "/api/rc4/transform?key=01&offset=-1", strings.NewReader("x"), int(errors.ErrCodeBadRequest)},
		{"huge offset", fmt.Sprintf("/api/rc4/transform?key=01&offset=%d", MaxOffset+1), strings.NewReader("x"), int(errors.ErrCodeBadRequest)},
		{"bad size", "/api/rc4/transform?key=01&size=abc", strings.NewReader("x"), int(errors.ErrCodeBadRequest)},
		{"unknown enc", "/api/rc4/transform?key=01&enc=des", strings.NewReader("x"), int(errors.ErrCodeBadRequest)},
		{"body too large", "/api/rc4/transform?key=01", bytes.NewReader(make([]byte, 1<<20+1)), int(errors.ErrCodeBadRequest)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.target, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if got := decode(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestJournal(t *testing.T) {
	journal := storage.NewBoltJournal(newStore(t), false)
	r := newRouter(NewRC4Handler(testConfig(), journal))

	postJSON(r, "/api/rc4/encrypt", textRequest{Key: "Key", Text: "Plaintext"})
	postJSON(r, "/api/rc4/decrypt", textRequest{Key: "Key", Hex: "BBF316E8D940AF0AD3"})

	w := do(r, http.MethodGet, "/api/journal?limit=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code int `json:"code"`
		Data struct {
			Entries []storage.Entry `json:"entries"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	got := resp.Data.Entries
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	// newest first
	if got[0].Source != "hex" || got[1].Source != "text" {
		t.Errorf("order = %q, %q", got[0].Source, got[1].Source)
	}
	for _, e := range got {
		if e.Origin != "http" || e.Length != 9 || e.KeyFingerprint != storage.Fingerprint([]byte("Key")) {
			t.Errorf("entry = %+v", e)
		}
	}

	if w := do(r, http.MethodGet, "/api/journal?limit=x", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestAlgorithms(t *testing.T) {
	r := newRouter(NewRC4Handler(testConfig(), storage.NopJournal{}))
	w := do(r, http.MethodGet, "/api/rc4/algorithms", nil, nil)

	var resp struct {
		Data struct {
			Algorithms []string `json:"algorithms"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"rc4", "rc4md5", "rc4pbkdf2"}, resp.Data.Algorithms); diff != "" {
		t.Errorf("algorithms mismatch (-want +got):\n%s", diff)
	}
}

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.JWTAuth) {
	t.Helper()
	users := dao.NewUserDAO(newStore(t)).WithCost(bcrypt.MinCost)
	if err := users.EnsureDefaultUser("s3cret"); err != nil {
		t.Fatal(err)
	}
	jwtAuth := auth.NewJWTAuth("test-secret", time.Hour)
	attempts := cache.NewAttempts(time.Minute, MaxLoginFailures)
	t.Cleanup(attempts.Close)

	r := gin.New()
	h := NewAuthHandler(jwtAuth, users, attempts)
	r.POST("/api/login", h.Login)
	api := r.Group("/api", RequireToken(jwtAuth))
	api.POST("/password", h.ChangePassword)
	api.GET("/whoami", func(c *gin.Context) {
		RespondSuccess(c, gin.H{"user": c.GetString("username")})
	})
	return r, jwtAuth
}

func TestLogin(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := postJSON(r, "/api/login", map[string]string{"username": dao.DefaultUser, "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	token := decode(t, w).str("token")
	if token == "" {
		t.Fatal("no token issued")
	}

	w = do(r, http.MethodGet, "/api/whoami", nil, map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("whoami status = %d", w.Code)
	}
	if got := decode(t, w).str("user"); got != dao.DefaultUser {
		t.Errorf("user = %q", got)
	}

	w = do(r, http.MethodGet, "/api/whoami?token="+token, nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token status = %d", w.Code)
	}
}

func TestRequireTokenRejects(t *testing.T) {
	r, _ := newAuthRouter(t)
	other := auth.NewJWTAuth("other-secret", time.Hour)
	forged, err := other.GenerateToken(dao.DefaultUser)
	if err != nil {
		t.Fatal(err)
	}

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-token",
		"forged":  "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/whoami", nil, map[string]string{"Authorization": header})
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestLoginLockout(t *testing.T) {
	r, _ := newAuthRouter(t)
	bad := map[string]string{"username": dao.DefaultUser, "password": "wrong"}

	for n := 0; n < MaxLoginFailures; n++ {
		if w := postJSON(r, "/api/login", bad); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", n, w.Code)
		}
	}

	good := map[string]string{"username": dao.DefaultUser, "password": "s3cret"}
	w := postJSON(r, "/api/login", good)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status after lockout = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func login(t *testing.T, r http.Handler, password string) (int, string) {
	t.Helper()
	w := postJSON(r, "/api/login", map[string]string{"username": dao.DefaultUser, "password": password})
	if w.Code != http.StatusOK {
		return w.Code, ""
	}
	return w.Code, decode(t, w).str("token")
}

func TestChangePassword(t *testing.T) {
	r, _ := newAuthRouter(t)
	_, token := login(t, r, "s3cret")
	bearer := map[string]string{"Content-Type": "application/json", "Authorization": "Bearer " + token}

	tests := []struct {
		name       string
		body       string
		header     map[string]string
		wantStatus int
	}{
		{"no token", `{"old_password":"s3cret","new_password":"n3w"}`, map[string]string{"Content-Type": "application/json"}, http.StatusUnauthorized},
		{"wrong old password", `{"old_password":"nope","new_password":"n3w"}`, bearer, http.StatusUnauthorized},
		{"empty new password", `{"old_password":"s3cret","new_password":""}`, bearer, http.StatusBadRequest},
		{"bad json", `{`, bearer, http.StatusBadRequest},
		{"ok", `{"old_password":"s3cret","new_password":"n3w"}`, bearer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/password", strings.NewReader(tt.body), tt.header)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	if code, _ := login(t, r, "s3cret"); code != http.StatusUnauthorized {
		t.Errorf("old password login = %d, want 401", code)
	}
	if code, _ := login(t, r, "n3w"); code != http.StatusOK {
		t.Errorf("new password login = %d, want 200", code)
	}
}
