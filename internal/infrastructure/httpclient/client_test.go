package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientGetDecodesBodyAndSetsHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotContentType, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`[{"market":"KRW-BTC"}]`))
	}))
	defer server.Close()

	c := New(server.URL + "/v1")
	c.SetAuthToken("secret")

	var out []struct {
		Market string `json:"market"`
	}
	if err := c.Get(context.Background(), "/market/all", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(out) != 1 || out[0].Market != "KRW-BTC" {
		t.Fatalf("unexpected body: %+v", out)
	}
	if gotPath != "/v1/market/all" {
		t.Errorf("path = %q, want /v1/market/all", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/json" || gotContentType != "application/json" {
		t.Errorf("Accept = %q, Content-Type = %q", gotAccept, gotContentType)
	}
}

func TestClientOmitsAuthorizationWithoutToken(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL, WithAuthToken("old"))
	c.SetAuthToken("")
	if err := c.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hasAuth {
		t.Error("expected no Authorization header after clearing the token")
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`{"late":true}`))
	}))
	defer server.Close()

	c := New(server.URL, WithTimeout(50*time.Millisecond))

	out := map[string]any{"untouched": true}
	start := time.Now()
	err := c.Get(context.Background(), "/slow", &out)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if err.Error() != "Request Timeout" {
		t.Errorf("message = %q, want Request Timeout", err.Error())
	}
	if elapsed > time.Second {
		t.Errorf("request took %v, want close to the 50ms timeout", elapsed)
	}
	if _, ok := out["late"]; ok {
		t.Error("timed out request must not write partial data")
	}
}

func TestClientPerRequestTimeoutOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := New(server.URL)
	err := c.Do(context.Background(), Request{Endpoint: "/", Timeout: 30 * time.Millisecond}, nil)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Kind != KindTimeout {
		t.Fatalf("expected timeout RequestError, got %v", err)
	}
}

func TestClientHTTPStatusError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusBadRequest, `{"message":"bad market"}`, "Error 400: bad market"},
		{"upbit error object", http.StatusNotFound, `{"error":{"name":"404","message":"Code not found"}}`, "Error 404: Code not found"},
		{"no message", http.StatusInternalServerError, `{}`, "Error 500: Something went wrong"},
		{"not json", http.StatusBadGateway, `<html>oops</html>`, "Error 502: Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := New(server.URL).Get(context.Background(), "/", nil)
			if !errors.Is(err, ErrHTTPStatus) {
				t.Fatalf("expected ErrHTTPStatus, got %v", err)
			}
			var reqErr *RequestError
			errors.As(err, &reqErr)
			if reqErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, tt.status)
			}
			if reqErr.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", reqErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClientDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	var out []string
	err := New(server.URL).Get(context.Background(), "/", &out)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := New(url).Get(context.Background(), "/", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestClientPostSendsJSONBody(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := New(server.URL).Post(context.Background(), "/orders", map[string]string{"market": "KRW-BTC"}, &out); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if got != `{"market":"KRW-BTC"}` {
		t.Errorf("body = %q", got)
	}
	if !out.OK {
		t.Error("expected decoded response")
	}
}

func TestClientPutAndDelete(t *testing.T) {
	type call struct {
		method string
		body   string
	}
	var got []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, call{r.Method, string(b)})
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(server.URL)
	ctx := context.Background()
	body := map[string]string{"market": "KRW-BTC"}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Put(ctx, "/orders/1", body, &out); err != nil || !out.OK {
		t.Fatalf("Put: err=%v out=%+v", err, out)
	}
	if err := c.Delete(ctx, "/orders/1", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []call{
		{http.MethodPut, `{"market":"KRW-BTC"}`},
		{http.MethodDelete, ""},
	}
	if len(got) != len(want) {
		t.Fatalf("calls = %+v", got)
	}
	for i := range want {
		if got[i].method != want[i].method || strings.TrimSpace(got[i].body) != want[i].body {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
