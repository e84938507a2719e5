package deviceflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAuthorizer_RequestCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login/device/code", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "read:user", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev_abc",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       900,
			"interval":         5,
		})
	}))
	defer server.Close()

	auth := NewAuthorizer(NewEndpoint(server.URL), "test-client")
	code, err := auth.RequestCode(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DeviceAuthorization{
		DeviceCode:      "dev_abc",
		UserCode:        "ABCD-1234",
		VerificationURI: "https://github.com/login/device",
		ExpiresIn:       900,
		Interval:        5,
	}, code)
}

func TestAuthorizer_RequestCodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized_client"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewAuthorizer(NewEndpoint(server.URL), "test-client").RequestCode(context.Background())
	require.Error(t, err)
}

func TestToDeviceAuthorization_Defaults(t *testing.T) {
	now := time.Now()

	got := toDeviceAuthorization(&oauth2.DeviceAuthResponse{DeviceCode: "d"}, now)
	assert.Equal(t, defaultExpiresIn, got.ExpiresIn)
	assert.Equal(t, defaultInterval, got.Interval)

	got = toDeviceAuthorization(&oauth2.DeviceAuthResponse{Expiry: now.Add(599600 * time.Millisecond), Interval: 7}, now)
	assert.Equal(t, 600, got.ExpiresIn)
	assert.Equal(t, 7, got.Interval)
}

func TestNewEndpoint(t *testing.T) {
	e := NewEndpoint("https://ghe.example")
	assert.Equal(t, "https://ghe.example/login/device/code", e.DeviceAuthURL)
	assert.Equal(t, "https://ghe.example/login/oauth/access_token", e.TokenURL)
}
