package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/zw-fingerprint/internal/api/middleware"
	"github.com/taoyao-code/zw-fingerprint/internal/link"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
	"github.com/taoyao-code/zw-fingerprint/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func responseFrame(confirm byte, params ...byte) []byte {
	total := zw.FrameLength(len(params))
	f := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, zw.PacketResponse, byte((total - 9) >> 8), byte(total - 9), confirm}
	f = append(f, params...)
	var sum uint16
	for _, b := range f[6:] {
		sum += uint16(b)
	}
	return append(f, byte(sum>>8), byte(sum))
}

func hexOf(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }

type stubLink struct {
	replies [][]byte
	err     error
	sent    []*zw.Encoded
}

func (s *stubLink) Exchange(_ context.Context, req *zw.Encoded) (*link.Exchange, error) {
	s.sent = append(s.sent, req)
	ex := &link.Exchange{ID: uuid.New(), Request: req}
	codec := zw.NewCodec(zw.ZW20, zw.BroadcastAddress)
	for _, raw := range s.replies {
		resp, err := codec.ParseResponse(raw, len(raw))
		ex.Replies = append(ex.Replies, link.Reply{Raw: raw, Response: resp, Err: err})
	}
	return ex, s.err
}

func newRouter(t *testing.T, l service.Exchanger, auth middleware.AuthConfig) *gin.Engine {
	t.Helper()
	svc := service.NewFingerprint(zw.NewCodec(zw.ZW20, zw.BroadcastAddress), service.Deps{Link: l})
	r := gin.New()
	RegisterRoutes(r, svc, auth, nil)
	return r
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestBuildFrame_Handshake(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})
	w, env := do(t, r, http.MethodPost, "/api/v1/frames/build", gin.H{"command": "handshake"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, env.RequestID)

	var got BuiltFrame
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "35", got.Opcode)
	assert.Equal(t, "EF01FFFFFFFF010003350039", got.Hex)
	assert.Equal(t, 12, got.Length)
	assert.Empty(t, got.Warnings)
}

func TestBuildFrame_ColorTruncationWarning(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})
	w, env := do(t, r, http.MethodPost, "/api/v1/frames/build", gin.H{
		"command": "control_led",
		"params":  gin.H{"function": 1, "start_color": 0x0F, "end_color": 0x07, "cycles": 0},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got BuiltFrame
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "EF01FFFFFFFF0100073C010707000053", got.Hex)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, zw.WarnColorBitsTruncated, got.Warnings[0].Kind)
	assert.Equal(t, "start_color", got.Warnings[0].Field)
}

func TestBuildFrame_Errors(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})

	tests := []struct {
		name string
		body gin.H
	}{
		{"未知指令", gin.H{"command": "format_flash"}},
		{"未知参数字段", gin.H{"command": "delete_char", "params": gin.H{"id": 1, "count": 1, "force": true}}},
		{"参数越界", gin.H{"command": "delete_char", "params": gin.H{"id": 1, "count": 6}}},
		{"缺少指令", gin.H{"params": gin.H{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/api/v1/frames/build", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}
}

func TestBuildFrame_ParamErrorDetail(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})
	_, env := do(t, r, http.MethodPost, "/api/v1/frames/build", gin.H{
		"command": "read_index_table",
		"params":  gin.H{"page": 5},
	})
	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "page", detail["field"])
	assert.EqualValues(t, 4, detail["max"])
}

func TestValidateFrame(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})

	w, env := do(t, r, http.MethodPost, "/api/v1/frames/validate", gin.H{"hex": "EF01 FFFFFFFF 07 0003 00 000A"})
	require.Equal(t, http.StatusOK, w.Code)
	var ok ValidateResult
	require.NoError(t, json.Unmarshal(env.Data, &ok))
	assert.True(t, ok.Valid)
	require.NotNil(t, ok.Frame)
	assert.Equal(t, "FFFFFFFF", ok.Frame.Address)
	assert.Equal(t, "00", ok.Frame.Code)
	assert.Equal(t, "000A", ok.Frame.Checksum)

	w, env = do(t, r, http.MethodPost, "/api/v1/frames/validate", gin.H{"hex": "EF01FFFFFFFF07000300000B"})
	require.Equal(t, http.StatusOK, w.Code)
	var bad ValidateResult
	require.NoError(t, json.Unmarshal(env.Data, &bad))
	assert.False(t, bad.Valid)
	assert.Equal(t, "checksum_mismatch", bad.Kind)

	w, _ = do(t, r, http.MethodPost, "/api/v1/frames/validate", gin.H{"hex": "zz"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexTableAndSlots(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})

	w, _ := do(t, r, http.MethodGet, "/api/v1/slots", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	bitmap := make([]byte, zw.IndexTableBytes)
	bitmap[0] = 0x05
	w, env := do(t, r, http.MethodPost, "/api/v1/frames/index-table", gin.H{"hex": hexOf(responseFrame(0x00, bitmap...))})
	require.Equal(t, http.StatusOK, w.Code)
	var parsed struct {
		Slots []int `json:"slots"`
		Count int   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	assert.Equal(t, []int{0, 2}, parsed.Slots)
	assert.Equal(t, 2, parsed.Count)

	w, env = do(t, r, http.MethodGet, "/api/v1/slots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots struct {
		NextFree int `json:"next_free"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	assert.Equal(t, 1, slots.NextFree)
}

func TestIndexTable_InvalidFrame(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})
	raw := responseFrame(0x00, make([]byte, zw.IndexTableBytes)...)
	raw[0] = 0xEE
	w, env := do(t, r, http.MethodPost, "/api/v1/frames/index-table", gin.H{"hex": hexOf(raw)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, string(env.Data), "header_mismatch")
}

func TestSendCommand_LinkDisabled(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})
	w, _ := do(t, r, http.MethodPost, "/api/v1/device/commands", gin.H{"command": "handshake"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSendCommand_Enroll(t *testing.T) {
	l := &stubLink{replies: [][]byte{
		responseFrame(0x00, 0x01, 0x01),
		responseFrame(0x00, 0x06, 0x02),
	}}
	r := newRouter(t, l, middleware.AuthConfig{})
	w, env := do(t, r, http.MethodPost, "/api/v1/device/commands", gin.H{
		"command": "auto_enroll",
		"params":  gin.H{"id": 3, "enroll_times": 2},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, l.sent, 1)
	assert.Equal(t, zw.OpAutoEnroll, l.sent[0].Opcode)

	var got ExchangeView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Replies, 2)
	require.NotNil(t, got.Replies[1].Enroll)
	assert.Equal(t, zw.EnrollStore, got.Replies[1].Enroll.Stage)
	assert.Equal(t, "ok", got.Replies[1].Confirm)
}

func TestSendCommand_LinkErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"应答超时", link.ErrTimeout, http.StatusGatewayTimeout},
		{"链路关闭", link.ErrClosed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, &stubLink{err: tt.err}, middleware.AuthConfig{})
			w, _ := do(t, r, http.MethodPost, "/api/v1/device/commands", gin.H{"command": "handshake"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestDeviceAddress(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{})

	w, _ := do(t, r, http.MethodPut, "/api/v1/device/address", gin.H{"address": "12345678"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodGet, "/api/v1/device", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"address":"12345678"`)

	// 地址已变更，广播地址的应答不再通过校验
	_, env = do(t, r, http.MethodPost, "/api/v1/frames/validate", gin.H{"hex": "EF01FFFFFFFF07000300000A"})
	assert.Contains(t, string(env.Data), "address_mismatch")

	w, _ = do(t, r, http.MethodPut, "/api/v1/device/address", gin.H{"address": "1234"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_Auth(t *testing.T) {
	r := newRouter(t, nil, middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_console"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/device", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/device", nil)
	req.Header.Set("X-API-Key", "sk_test_console")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
