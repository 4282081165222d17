package feishu

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	CallbackPath = "/callback"
	AuthTimeout  = 5 * time.Minute
)

var (
	ErrAuthDenied  = errors.New("authorization denied")
	ErrAuthTimeout = errors.New("timed out waiting for authorization")
)

const successPage = `<html>
<head><title>授权成功</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 50px;">
<h1>授权成功！</h1>
<p>您可以关闭此页面，返回终端查看结果。</p>
</body>
</html>`

type callbackResult struct {
	code string
	err  error
}

// AuthServer receives exactly one OAuth redirect on a loopback address.
type AuthServer struct {
	addr     string
	listener net.Listener
	srv      *http.Server
	results  chan callbackResult
}

func NewAuthServer(addr string) *AuthServer {
	return &AuthServer{addr: addr, results: make(chan callbackResult, 1)}
}

// Listen binds the port so a conflict surfaces before any browser opens.
func (s *AuthServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("port for %s is in use, close the other program and retry: %w", s.addr, err)
	}
	s.listener = ln

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(CallbackPath, s.handleCallback)

	s.srv = &http.Server{Handler: r}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Auth callback server stopped")
		}
	}()
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *AuthServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *AuthServer) handleCallback(c *gin.Context) {
	if code := c.Query("code"); code != "" {
		s.deliver(callbackResult{code: code})
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
		return
	}

	reason := c.Query("error")
	if reason == "" {
		reason = "未知错误"
	}
	s.deliver(callbackResult{err: fmt.Errorf("%w: %s", ErrAuthDenied, reason)})
	c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte("<h1>授权失败: "+html.EscapeString(reason)+"</h1>"))
}

func (s *AuthServer) deliver(r callbackResult) {
	select {
	case s.results <- r:
	default:
	}
}

// Wait blocks until the first redirect, ctx ends, or timeout passes, then
// shuts the listener down.
func (s *AuthServer) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer s.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-s.results:
		return r.code, r.err
	case <-timer.C:
		return "", ErrAuthTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close releases the port.
func (s *AuthServer) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// CodeFromRedirect pulls the authorization code out of a pasted redirect URL.
func CodeFromRedirect(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	q := u.Query()
	if code := q.Get("code"); code != "" {
		return code, nil
	}
	if reason := q.Get("error"); reason != "" {
		return "", fmt.Errorf("%w: %s", ErrAuthDenied, reason)
	}
	return "", errors.New("no authorization code in URL")
}
