package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrAuthFailed signals rejected credentials. There is no point retrying.
var ErrAuthFailed = errors.New("portal authentication failed")

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:1.0) Gecko/20100101 campuscrawl"

// Config controls the portal session.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// CredentialFile optionally points at an on-disk credential file
	// (username and password, one per line). The session takes exclusive
	// ownership of the file until Close; a second session on the same file
	// fails at construction. Explicit Username/Password take precedence
	// over the file contents.
	CredentialFile string

	UserAgent string
	Timeout   time.Duration
	// AuthTTL is how long a login is trusted before re-authenticating.
	AuthTTL time.Duration
}

// Session is an authenticated browser-like session against the portal. It
// keeps auth cookies across requests and re-authenticates when they age out.
// Sessions are safe for concurrent use.
type Session struct {
	cfg       Endpoints
	username  string
	password  string
	userAgent string
	timeout   time.Duration
	authTTL   time.Duration

	jar       http.CookieJar
	collector *colly.Collector
	logger    *zap.Logger
	release   func()

	authMu   sync.Mutex
	lastAuth time.Time
}

// NewSession validates the credentials and builds a session. Nothing is
// fetched until the first request.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("portal base URL is required")
	}
	var release func()
	if cfg.CredentialFile != "" {
		var err error
		release, err = acquireCredentialFile(cfg.CredentialFile)
		if err != nil {
			return nil, err
		}
		if cfg.Username == "" || cfg.Password == "" {
			cfg.Username, cfg.Password, err = readCredentialFile(cfg.CredentialFile)
			if err != nil {
				release()
				return nil, err
			}
		}
	}
	if cfg.Username == "" || cfg.Password == "" {
		if release != nil {
			release()
		}
		return nil, errors.New("portal credentials are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}
	c := colly.NewCollector(colly.AllowURLRevisit())
	// every useful page sits behind auth; robots.txt has nothing to say here
	c.IgnoreRobotsTxt = true
	c.WithTransport(newTransport())
	c.SetCookieJar(jar)

	s := &Session{
		cfg:       Endpoints{Base: cfg.BaseURL},
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		authTTL:   cfg.AuthTTL,
		jar:       jar,
		collector: c,
		logger:    logger,
		release:   release,
	}
	if s.userAgent == "" {
		s.userAgent = defaultUserAgent
	}
	if s.timeout == 0 {
		s.timeout = 30 * time.Second
	}
	if s.authTTL == 0 {
		s.authTTL = 15 * time.Minute
	}
	return s, nil
}

// URLs exposes the endpoint catalogue bound to this session's portal.
func (s *Session) URLs() Endpoints {
	return s.cfg
}

// Close releases the credential file, if one was claimed.
func (s *Session) Close() error {
	if s.release != nil {
		s.release()
		s.release = nil
	}
	return nil
}

// acquireCredentialFile claims a credential file by creating a sibling lock
// marker. Two sessions on one file would interleave logins on the same
// portal account, so the second claim fails until the first Close.
func acquireCredentialFile(path string) (func(), error) {
	lock := path + ".lock"
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("credential file %s is already in use", path)
		}
		return nil, fmt.Errorf("lock credential file: %w", err)
	}
	_ = f.Close()
	var once sync.Once
	return func() { once.Do(func() { _ = os.Remove(lock) }) }, nil
}

func readCredentialFile(path string) (string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read credential file: %w", err)
	}
	lines := strings.SplitN(strings.TrimSpace(string(raw)), "\n", 2)
	if len(lines) != 2 {
		return "", "", fmt.Errorf("credential file %s must hold a username line and a password line", path)
	}
	return strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1]), nil
}

// Login forces an authentication round-trip regardless of cookie age.
func (s *Session) Login(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.loginLocked(ctx)
}

// authenticate logs in when the last login is stale. Concurrent callers
// serialize so the portal sees one login at a time.
func (s *Session) authenticate(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	if !s.lastAuth.IsZero() && time.Since(s.lastAuth) < s.authTTL {
		return nil
	}
	return s.loginLocked(ctx)
}

func (s *Session) loginLocked(ctx context.Context) error {
	s.logger.Info("authenticating portal session")
	body, err := s.do(ctx, s.cfg.Base, map[string]string{
		"identificador": s.username,
		"senha":         s.password,
	})
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	// the login form is served back when credentials are rejected
	if bytes.Contains(body, []byte("password")) {
		return ErrAuthFailed
	}
	s.lastAuth = time.Now()
	s.logger.Info("portal session authenticated")
	return nil
}

// Fetch performs an authenticated GET and returns the raw body.
func (s *Session) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	s.logger.Debug("fetching", zap.String("url", url))
	return s.do(ctx, url, nil)
}

// Document performs an authenticated GET and parses the body. The portal
// serves Latin-1, so the body is transcoded before parsing.
func (s *Session) Document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	reader := transform.NewReader(bytes.NewReader(body), charmap.Windows1252.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", url, err)
	}
	return doc, nil
}

// do runs one request on a collector clone; a non-nil form upgrades it to a
// POST. The visit runs on its own goroutine so the context stays in charge.
func (s *Session) do(ctx context.Context, url string, form map[string]string) ([]byte, error) {
	collector := s.collector.Clone()
	collector.UserAgent = s.userAgent
	collector.SetCookieJar(s.jar)
	collector.SetRequestTimeout(s.timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			fetchErr = fmt.Errorf("unexpected status %d for %s", r.StatusCode, url)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		if form != nil {
			done <- collector.Post(url, form)
			return
		}
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return body, nil
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
