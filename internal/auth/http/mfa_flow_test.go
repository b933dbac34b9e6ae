package http

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type enrollResponse struct {
	ID        string `json:"id"`
	Secret    string `json:"secret"`
	QRCodeURI string `json:"qr_code_uri"`
}

type verifyResponse struct {
	Status      string   `json:"status"`
	BackupCodes []string `json:"backup_codes"`
}

// enrollOverHTTP drives the enroll+verify endpoints for a signed-in
// browser and returns the TOTP secret and issued backup codes.
func enrollOverHTTP(t *testing.T, browser *http.Client, baseURL string) (string, []string) {
	t.Helper()

	resp := postJSON(t, browser, baseURL+"/v1/mfa/totp/enroll", nil)
	var enroll enrollResponse
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &enroll)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.QRCodeURI, "data:image/png;base64,")

	code, err := totp.GenerateCode(enroll.Secret, time.Now())
	require.NoError(t, err)

	resp = postJSON(t, browser, baseURL+"/v1/mfa/totp/verify", map[string]string{
		"enrollment_id": enroll.ID,
		"code":          code,
		"friendly_name": "Phone",
	})
	var verify verifyResponse
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &verify)
	require.Equal(t, "enabled", verify.Status)

	return enroll.Secret, verify.BackupCodes
}

func TestMFAEnrollmentAndChallengeFlow(t *testing.T) {
	env := newTestEnv(t)
	browser := newBrowser(t)
	signUp(t, browser, env.Server.URL, "alice@example.com", "hunter2!")

	secret, codes := enrollOverHTTP(t, browser, env.Server.URL)
	require.Len(t, codes, 10)

	// A fresh device now gets challenged instead of signed in.
	laptop := newBrowser(t)
	resp := postJSON(t, laptop, env.Server.URL+"/v1/auth/signin", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2!",
	})
	var challenge struct {
		MFARequired bool   `json:"mfa_required"`
		MFAToken    string `json:"mfa_token"`
		Factors     []struct {
			Kind string `json:"kind"`
		} `json:"factors"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &challenge)
	require.True(t, challenge.MFARequired)
	require.NotEmpty(t, challenge.MFAToken)
	require.NotEmpty(t, challenge.Factors)

	// No session cookie was handed out yet.
	resp = getJSON(t, laptop, env.Server.URL+"/v1/auth/profile")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	resp = postJSON(t, laptop, env.Server.URL+"/v1/auth/mfa", map[string]string{
		"mfa_token": challenge.MFAToken,
		"code":      code,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, laptop, env.Server.URL+"/v1/auth/profile")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMFAChallengeRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	browser := newBrowser(t)
	signUp(t, browser, env.Server.URL, "alice@example.com", "hunter2!")
	enrollOverHTTP(t, browser, env.Server.URL)

	laptop := newBrowser(t)
	resp := postJSON(t, laptop, env.Server.URL+"/v1/auth/signin", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2!",
	})
	var challenge struct {
		MFAToken string `json:"mfa_token"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &challenge)

	resp = postJSON(t, laptop, env.Server.URL+"/v1/auth/mfa", map[string]string{
		"mfa_token": challenge.MFAToken,
		"code":      "000000",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMFAFactorManagement(t *testing.T) {
	env := newTestEnv(t)
	browser := newBrowser(t)
	signUp(t, browser, env.Server.URL, "alice@example.com", "hunter2!")
	enrollOverHTTP(t, browser, env.Server.URL)

	resp := getJSON(t, browser, env.Server.URL+"/v1/mfa/factors")
	var list struct {
		Factors []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"factors"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &list)
	require.Len(t, list.Factors, 2) // TOTP + backup codes

	var totpID string
	for _, f := range list.Factors {
		if f.Kind == "TOTP" {
			totpID = f.ID
		}
	}
	require.NotEmpty(t, totpID)

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/v1/mfa/factors/%s", env.Server.URL, totpID), nil)
	require.NoError(t, err)
	delResp, err := browser.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	resp = getJSON(t, browser, env.Server.URL+"/v1/mfa/factors")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &list)
	require.Empty(t, list.Factors, "backup-code factor is cleaned up with the last TOTP factor")
}

func TestSessionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	browser := newBrowser(t)
	signUp(t, browser, env.Server.URL, "alice@example.com", "hunter2!")

	resp := getJSON(t, browser, env.Server.URL+"/v1/sessions")
	var list struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &list)
	require.Len(t, list.Sessions, 1)
	require.True(t, list.Sessions[0].Current)
}
