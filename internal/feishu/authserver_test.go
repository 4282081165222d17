package feishu_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"xinfadi_prices/internal/feishu"
)

func startAuthServer(t *testing.T) *feishu.AuthServer {
	t.Helper()
	s := feishu.NewAuthServer("127.0.0.1:0")
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hitCallback(t *testing.T, s *feishu.AuthServer, query string) int {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + feishu.CallbackPath + query)
	if err != nil {
		t.Fatalf("Callback request failed: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthServerReceivesCode(t *testing.T) {
	s := startAuthServer(t)

	if status := hitCallback(t, s, "?code=abc&state=feishu_sync"); status != http.StatusOK {
		t.Errorf("Expected 200, got %d", status)
	}

	code, err := s.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != "abc" {
		t.Errorf("Expected code abc, got %s", code)
	}
}

func TestAuthServerReportsDenial(t *testing.T) {
	s := startAuthServer(t)

	if status := hitCallback(t, s, "?error=access_denied"); status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}

	_, err := s.Wait(context.Background(), time.Second)
	if !errors.Is(err, feishu.ErrAuthDenied) {
		t.Errorf("Expected ErrAuthDenied, got %v", err)
	}
}

func TestAuthServerTimesOut(t *testing.T) {
	s := startAuthServer(t)

	_, err := s.Wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, feishu.ErrAuthTimeout) {
		t.Errorf("Expected ErrAuthTimeout, got %v", err)
	}
}

func TestAuthServerReleasesPort(t *testing.T) {
	s := startAuthServer(t)
	addr := s.Addr()

	if _, err := s.Wait(context.Background(), 10*time.Millisecond); err == nil {
		t.Fatal("Expected timeout")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("Expected port to be free after Wait, got %v", err)
	}
	ln.Close()
}

func TestAuthServerPortConflict(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	s := feishu.NewAuthServer(busy.Addr().String())
	if err := s.Listen(); err == nil {
		s.Close()
		t.Error("Expected an error for a port already in use")
	}
}

func TestCodeFromRedirect(t *testing.T) {
	code, err := feishu.CodeFromRedirect(" http://localhost:9000/callback?code=xyz&state=feishu_sync ")
	if err != nil || code != "xyz" {
		t.Errorf("Expected xyz, got %q, %v", code, err)
	}

	if _, err := feishu.CodeFromRedirect("http://localhost:9000/callback?error=denied"); !errors.Is(err, feishu.ErrAuthDenied) {
		t.Errorf("Expected ErrAuthDenied, got %v", err)
	}
	if _, err := feishu.CodeFromRedirect("http://localhost:9000/callback"); err == nil {
		t.Error("Expected error without code")
	}
}
