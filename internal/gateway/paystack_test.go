package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPaystackVerifyParsesCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/REF1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"data":{"status":"success","amount":2000,"customer":{"email":"e@x.com"}}}`)) // nolint:errcheck
	}))
	defer srv.Close()

	c := NewPaystackClient("sk-test", srv.URL, time.Second)
	v, err := c.Verify(context.Background(), "REF1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Status != StatusSuccess || v.AmountPesewas != 2_000 || v.CustomerEmail != "e@x.com" {
		t.Fatalf("unexpected verification: %+v", v)
	}
}

func TestPaystackVerifyDoesNotRetryGatewayRejection(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPaystackClient("sk-test", srv.URL, time.Second)
	if _, err := c.Verify(context.Background(), "REF1"); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
	// The retry is reserved for transport failures; a delivered response is
	// final even when it is an error status.
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("gateway called %d times, want 1", n)
	}
}

func TestTransportErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	// A connection failure is the retryable case.
	c := NewPaystackClient("sk-test", addr, time.Second)
	_, err := c.verifyOnce(context.Background(), "REF1")
	if err == nil {
		t.Fatal("expected a transport error against a closed listener")
	}
	if !transportError(err) {
		t.Fatalf("connection failure must classify as transport error: %v", err)
	}
	if transportError(nil) {
		t.Fatal("nil must not classify as a transport error")
	}
}
