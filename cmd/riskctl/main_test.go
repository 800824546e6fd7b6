package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/riskguard/internal/kv"
	"github.com/and161185/riskguard/internal/limiter"
	httpserver "github.com/and161185/riskguard/internal/server/http"
	"github.com/and161185/riskguard/internal/service"
	"github.com/and161185/riskguard/internal/toggle"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "riskguard")
}

func newServer(t *testing.T, key string) *httptest.Server {
	t.Helper()
	store := kv.NewMemory()
	sw := toggle.New(store)
	svc := service.NewGuardService(limiter.NewEngine(store, sw), sw, nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(httpserver.NewRouter(svc, zaptest.NewLogger(t), httpserver.Options{
		AdminKey: []byte(key),
		Backend:  string(kv.KindMemory),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	require.Equal(t, base, cfgDir())
	require.True(t, strings.HasPrefix(tokenPath(), base))
	require.True(t, strings.HasSuffix(tokenPath(), "token.json"))
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	_, err := loadToken()
	require.Error(t, err, "missing file")

	require.NoError(t, saveToken("tok", time.Now().Add(time.Minute)))
	tok, err := loadToken()
	require.NoError(t, err)
	require.Equal(t, "tok", tok)

	info, err := os.Stat(tokenPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, saveToken("tok2", time.Now().Add(-time.Minute)))
	_, err = loadToken()
	require.Error(t, err, "expired token")
}

func Test_mintAdminToken(t *testing.T) {
	now := time.Now()
	tok, exp, err := mintAdminToken([]byte("k"), "ops", time.Hour, now)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	var claims httpserver.AdminClaims
	_, err = jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) { return []byte("k"), nil })
	require.NoError(t, err)
	require.Equal(t, httpserver.RoleAdmin, claims.Role)
	require.Equal(t, "ops", claims.Subject)

	_, _, err = mintAdminToken(nil, "ops", time.Hour, now)
	require.Error(t, err)
}

func Test_textArg(t *testing.T) {
	got, err := textArg("check", []string{"-text", "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	p := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(p, []byte("from file\n"), 0o600))
	got, err = textArg("check", []string{"-file", p})
	require.NoError(t, err)
	require.Equal(t, "from file", got)

	_, err = textArg("check", nil)
	require.Error(t, err)
	_, err = textArg("check", []string{"-text", "a", "-file", p})
	require.Error(t, err)
}

func Test_run_AdminFlow(t *testing.T) {
	_ = withTmpConfig(t)
	srv := newServer(t, "admin-key")

	_, err := runCLI(t, "-addr", srv.URL, "status")
	require.Error(t, err, "no token yet")

	out, err := runCLI(t, "token", "-key", "admin-key")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	out, err = runCLI(t, "-addr", srv.URL, "status")
	require.NoError(t, err)
	require.JSONEq(t, `{"enabled":true}`, out)

	out, err = runCLI(t, "-addr", srv.URL, "disable")
	require.NoError(t, err)
	require.JSONEq(t, `{"enabled":false}`, out)

	out, err = runCLI(t, "-addr", srv.URL, "status")
	require.NoError(t, err)
	require.JSONEq(t, `{"enabled":false}`, out)
}

func Test_run_WrongKeySurfacesEnvelope(t *testing.T) {
	_ = withTmpConfig(t)
	srv := newServer(t, "admin-key")

	_, err := runCLI(t, "token", "-key", "other")
	require.NoError(t, err)

	_, err = runCLI(t, "-addr", srv.URL, "enable")
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, 401, ae.Status)
	require.Equal(t, "unauthorized", ae.Code)
}

func Test_run_HealthAndClassify(t *testing.T) {
	srv := newServer(t, "")

	out, err := runCLI(t, "-addr", srv.URL, "health")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok","backend":"memory"}`, out)

	out, err = runCLI(t, "-addr", srv.URL, "classify", "-text", "<script>alert(1)</script>")
	require.NoError(t, err)
	var v map[string]bool
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.True(t, v["suspicious"])

	out, err = runCLI(t, "check", "-text", "free money inside")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.True(t, v["spam"])
	require.False(t, v["suspicious"])
}

func Test_run_LockoutFlow(t *testing.T) {
	srv := newServer(t, "")

	out, err := runCLI(t, "-addr", srv.URL, "route-check", "-route", "/login")
	require.NoError(t, err)
	require.Equal(t, "allowed\n", out)

	for i := 0; i < 4; i++ {
		out, err = runCLI(t, "-addr", srv.URL, "fail", "-route", "/login")
		require.NoError(t, err)
		require.JSONEq(t, `{"locked_out":false}`, out)
	}
	out, err = runCLI(t, "-addr", srv.URL, "fail", "-route", "/login")
	require.NoError(t, err)
	require.JSONEq(t, `{"locked_out":true}`, out)

	_, err = runCLI(t, "-addr", srv.URL, "route-check", "-route", "/login")
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, 429, ae.Status)
	require.Equal(t, "locked_out", ae.Code)

	out, err = runCLI(t, "-addr", srv.URL, "reset", "-route", "/login")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)
	_, err = runCLI(t, "-addr", srv.URL, "route-check", "-route", "/login")
	require.ErrorAs(t, err, &ae, "reset clears the counter, not an active lockout")

	_, err = runCLI(t, "-addr", srv.URL, "route-check")
	require.Error(t, err)
}

func Test_run_UsageErrors(t *testing.T) {
	_, err := runCLI(t)
	require.Error(t, err)

	_, err = runCLI(t, "bogus")
	require.Error(t, err)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "riskctl dev")
}
