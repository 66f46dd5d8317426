package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func validConfig(base string) Config {
	return Config{BaseURL: base, Username: "crawler", Password: "hunter2"}
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSession(Config{Username: "u", Password: "p"}, nil)
	require.ErrorContains(t, err, "base URL")

	_, err = NewSession(Config{BaseURL: "http://portal", Username: "u"}, nil)
	require.ErrorContains(t, err, "credentials")

	s, err := NewSession(validConfig("http://portal"), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://portal", s.URLs().Base)
}

func TestCredentialFileExclusiveOwnership(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "portal.auth")
	require.NoError(t, os.WriteFile(path, []byte("crawler\nhunter2\n"), 0o600))

	cfg := Config{BaseURL: "http://portal", CredentialFile: path}
	first, err := NewSession(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "crawler", first.username)
	assert.Equal(t, "hunter2", first.password)

	_, err = NewSession(cfg, nil)
	require.ErrorContains(t, err, "already in use")

	require.NoError(t, first.Close())
	second, err := NewSession(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestCredentialFileMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "portal.auth")
	require.NoError(t, os.WriteFile(path, []byte("only-a-username"), 0o600))

	_, err := NewSession(Config{BaseURL: "http://portal", CredentialFile: path}, nil)
	require.ErrorContains(t, err, "username line and a password line")
	// a failed construction must not leave the lock behind
	s, err := NewSession(Config{
		BaseURL:        "http://portal",
		Username:       "crawler",
		Password:       "hunter2",
		CredentialFile: path,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLoginRejectedCredentials(t *testing.T) {
	t.Parallel()
	srv := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the portal answers a failed login with the form again
		_, _ = w.Write([]byte(`<form><input type="password" name="senha"/></form>`))
	}))

	s, err := NewSession(validConfig(srv.URL), nil)
	require.NoError(t, err)
	require.ErrorIs(t, s.Login(context.Background()), ErrAuthFailed)
}

func TestSessionReusesAuthentication(t *testing.T) {
	t.Parallel()
	var logins, gets atomic.Int32
	srv := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			logins.Add(1)
			_, _ = w.Write([]byte("<html>welcome</html>"))
			return
		}
		gets.Add(1)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))

	s, err := NewSession(validConfig(srv.URL), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Fetch(ctx, srv.URL+"/page")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), logins.Load(), "login should happen once within the TTL")
	assert.Equal(t, int32(3), gets.Load())
}

func TestSessionReauthenticatesAfterTTL(t *testing.T) {
	t.Parallel()
	var logins atomic.Int32
	srv := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			logins.Add(1)
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))

	cfg := validConfig(srv.URL)
	cfg.AuthTTL = time.Millisecond
	s, err := NewSession(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Fetch(ctx, srv.URL+"/page")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.Fetch(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestDocumentDecodesLatin1(t *testing.T) {
	t.Parallel()
	srv := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte("<html>ok</html>"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Informática" with the Latin-1 byte for á
		_, _ = w.Write([]byte("<html><body><p>Inform\xe1tica</p></body></html>"))
	}))

	s, err := NewSession(validConfig(srv.URL), nil)
	require.NoError(t, err)

	doc, err := s.Document(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Informática", doc.Find("p").Text())
}

func TestFetchSurfacesServerErrors(t *testing.T) {
	t.Parallel()
	srv := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte("<html>ok</html>"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	s, err := NewSession(validConfig(srv.URL), nil)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), srv.URL+"/page")
	require.Error(t, err)
}

func TestEndpointsEncodeLegacyParameters(t *testing.T) {
	t.Parallel()
	e := Endpoints{Base: "http://portal"}

	assert.Contains(t, e.Departments(97747, 2015), "ano_lectivo=2015")
	assert.Contains(t, e.Departments(97747, 2015), "institui%E7%E3o=97747")
	assert.Contains(t, e.ClassShift(97747, 98021, 2015, "s", 1, 7332, "t", 2), "tipo=t&n%BA=2")
	assert.Contains(t, e.ClassEnrolled(97747, 98021, 2015, "s", 1, 7332), "modo=pauta&aux=ficheiro")
	assert.Contains(t, e.BuildingSchedule(97747, 5, 2015, "s", 1, 3), "dia_%FAtil_da_semana=3")
}
