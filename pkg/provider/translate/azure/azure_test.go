package azure_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/lingualive/pkg/provider/translate"
	"github.com/MrWong99/lingualive/pkg/provider/translate/azure"
)

func TestNew_EmptyKey(t *testing.T) {
	if _, err := azure.New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestTranslate_Success(t *testing.T) {
	var (
		mu                                                     sync.Mutex
		gotPath, gotTo, gotVersion, gotKey, gotRegion, gotType string
		gotBody                                                []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotTo = r.URL.Query().Get("to")
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotRegion = r.Header.Get("Ocp-Apim-Subscription-Region")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"detectedLanguage":{"language":"en","score":1},"translations":[{"text":"Bonjour le monde","to":"fr"}]}]`))
	}))
	defer srv.Close()

	tr, err := azure.New("secret", azure.WithEndpoint(srv.URL+"/"), azure.WithRegion("westeurope"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Translate(context.Background(), "Hello world", "fr")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got != "Bonjour le monde" {
		t.Errorf("Translate() = %q, want %q", got, "Bonjour le monde")
	}
	checks := []struct{ name, got, want string }{
		{"path", gotPath, "/translate"},
		{"to", gotTo, "fr"},
		{"api-version", gotVersion, "3.0"},
		{"key header", gotKey, "secret"},
		{"region header", gotRegion, "westeurope"},
		{"content type", gotType, "application/json"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if len(gotBody) != 1 || gotBody[0]["text"] != "Hello world" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestTranslate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   translate.Kind
	}{
		{name: "unauthorized", status: 401, body: `{"error":{"code":401000,"message":"bad key"}}`, want: translate.KindAuth},
		{name: "forbidden", status: 403, body: `{}`, want: translate.KindAuth},
		{name: "throttled", status: 429, body: `{"error":{"code":429001,"message":"slow down"}}`, want: translate.KindQuota},
		{name: "server error", status: 503, body: `oops`, want: translate.KindNetwork},
		{name: "bad json", status: 200, body: `{not json`, want: translate.KindMalformed},
		{name: "no translations", status: 200, body: `[{"translations":[]}]`, want: translate.KindMalformed},
		{name: "empty array", status: 200, body: `[]`, want: translate.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr, _ := azure.New("k", azure.WithEndpoint(srv.URL))
			_, err := tr.Translate(context.Background(), "hi", "de")
			if err == nil {
				t.Fatal("expected error")
			}
			var te *translate.Error
			if !errors.As(err, &te) {
				t.Fatalf("error %v is not a *translate.Error", err)
			}
			if te.Kind != tt.want {
				t.Errorf("kind = %v, want %v", te.Kind, tt.want)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("server saw %d requests, want exactly 1", n)
			}
		})
	}
}

func TestTranslate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	tr, _ := azure.New("k", azure.WithEndpoint(srv.URL), azure.WithTimeout(20*time.Millisecond))
	_, err := tr.Translate(context.Background(), "hi", "de")
	if translate.KindOf(err) != translate.KindNetwork {
		t.Errorf("error = %v, want network kind", err)
	}
}

func TestTranslate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, _ := azure.New("k", azure.WithEndpoint(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := tr.Translate(ctx, "hi", "de")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
