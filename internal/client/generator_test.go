package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    Kind
		wantMessage string
	}{
		{name: "video", status: http.StatusOK, body: "\x00\x00\x00\x18ftypmp42", wantKind: Success},
		{name: "empty video", status: http.StatusOK, body: "", wantKind: EmptyPayload, wantMessage: MsgEmptyPayload},
		{name: "structured error", status: http.StatusBadRequest, body: `{"error":"bad description"}`, wantKind: HTTPError, wantMessage: "bad description"},
		{name: "unparseable error", status: http.StatusInternalServerError, body: "<html>oops</html>", wantKind: HTTPError, wantMessage: MsgFailed},
		{name: "markup in error", status: http.StatusBadRequest, body: `{"error":"<b>bad</b> description"}`, wantKind: HTTPError, wantMessage: "bad description"},
		{name: "error field missing", status: http.StatusBadGateway, body: `{"detail":"x"}`, wantKind: HTTPError, wantMessage: MsgFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := NewGenerator(srv.URL, time.Second).Generate(context.Background(), "a circle")
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantMessage, res.Message)
			if tt.wantKind == Success {
				assert.Equal(t, []byte(tt.body), res.Video)
				assert.True(t, res.OK())
			}
		})
	}
}

func TestGenerateSendsJSONDescription(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4"))
	}))
	defer srv.Close()

	res := NewGenerator(srv.URL, time.Second).Generate(context.Background(), "two squares rotating")
	require.True(t, res.OK())
	assert.Equal(t, "two squares rotating", got.Description)
	assert.Equal(t, "video/mp4", res.ContentType)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	res := NewGenerator(srv.URL, 50*time.Millisecond).Generate(context.Background(), "slow")
	assert.Equal(t, Timeout, res.Kind)
	assert.Equal(t, MsgTimeout, res.Message)
	assert.NotEqual(t, MsgFailed, res.Message)
	assert.NotEqual(t, MsgUnknown, res.Message)
}

func TestGenerateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewGenerator(url, time.Second).Generate(context.Background(), "offline")
	assert.Equal(t, Unknown, res.Kind)
	assert.Equal(t, MsgUnknown, res.Message)
	assert.Error(t, res.Err)
}

func TestNewGeneratorDefaults(t *testing.T) {
	g := NewGenerator("", 0)
	assert.Equal(t, DefaultURL, g.URL)
	assert.Equal(t, DefaultTimeout, g.Timeout)
}
