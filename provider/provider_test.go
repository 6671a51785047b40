package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TedyHub/langsync/kv"
)

func TestSyncSuccess(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/sync" {
			t.Errorf("path = %q, want /v1/sync", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{
			Languages: map[string]LanguageResult{
				"de": {Content: []kv.KeyValue{{Key: "a", Value: "Hallo"}}, Credits: 2},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	res, err := c.Sync(context.Background(), Request{
		SourceLang:  "en",
		TargetLangs: []string{"de"},
		Content:     []kv.KeyValue{{Key: "a", Value: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.SourceLang != "en" || len(gotReq.Content) != 1 {
		t.Errorf("request = %+v", gotReq)
	}
	de := res.Languages["de"]
	if len(de.Content) != 1 || de.Content[0].Value != "Hallo" || de.Credits != 2 {
		t.Errorf("result = %+v", de)
	}
}

func TestSyncBillingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": {"code": "insufficient_credits", "message": "not enough credits", "current_balance": 5, "required_credits": 40}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "test-key")
	_, err := c.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	pe, ok := AsError(err)
	if !ok {
		t.Fatalf("Sync() error = %v, want *Error", err)
	}
	if pe.Code != CodeInsufficientCredits {
		t.Errorf("Code = %q, want %q", pe.Code, CodeInsufficientCredits)
	}
	if pe.CurrentBalance == nil || *pe.CurrentBalance != 5 {
		t.Errorf("CurrentBalance = %v, want 5", pe.CurrentBalance)
	}
	if pe.RequiredCredits == nil || *pe.RequiredCredits != 40 {
		t.Errorf("RequiredCredits = %v, want 40", pe.RequiredCredits)
	}
}

func TestSyncUnauthorizedStatusFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "bad-key")
	_, err := c.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	pe, ok := AsError(err)
	if !ok || pe.Code != CodeUnauthorized {
		t.Errorf("Sync() error = %v, want unauthorized", err)
	}
}

func TestSyncTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "test-key")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Sync(ctx, Request{SourceLang: "en", TargetLangs: []string{"de"}})
	pe, ok := AsError(err)
	if !ok || pe.Code != CodeTimeout {
		t.Errorf("Sync() error = %v, want timeout", err)
	}
}

func TestSyncRetriesServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Result{Preview: &Preview{Words: 3, Credits: 1}})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "test-key")
	res, err := c.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}, DryRun: true})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if res.Preview == nil || res.Preview.Credits != 1 {
		t.Errorf("Preview = %+v", res.Preview)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("", ""); err == nil {
		t.Error("NewClient with empty key succeeded, want error")
	}
}

func TestErrorUnwrapsThroughWrapping(t *testing.T) {
	inner := &Error{Code: CodeUnavailable, Message: "down"}
	wrapped := &wrapErr{inner}
	pe, ok := AsError(wrapped)
	if !ok || pe.Code != CodeUnavailable {
		t.Errorf("AsError(%v) = %v, %v", wrapped, pe, ok)
	}
}

type wrapErr struct{ err error }

func (w *wrapErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapErr) Unwrap() error { return w.err }
