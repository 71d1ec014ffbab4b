package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQueueClientSubmitAndPoll(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var params map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				t.Errorf("decode submitted params: %v", err)
			}
			if params["prompt"] != "a lighthouse at sunset" {
				t.Errorf("submitted prompt = %v", params["prompt"])
			}
			json.NewEncoder(w).Encode(map[string]string{"request_id": "req-123"})
		case r.Method == http.MethodGet:
			polls++
			state := StateRunning
			asset := ""
			if polls >= 2 {
				state = StateCompleted
				asset = "https://cdn.example/img.png"
			}
			json.NewEncoder(w).Encode(Result{State: state, AssetRef: asset})
		}
	}))
	defer srv.Close()

	c := NewQueueClient(srv.URL, srv.Client())
	h, err := c.Submit(context.Background(), "fal-ai/flux/schnell", map[string]interface{}{
		"prompt": "a lighthouse at sunset",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h != "req-123" {
		t.Errorf("handle = %q, want req-123", h)
	}

	r, err := Await(context.Background(), c, h, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if r.State != StateCompleted || r.AssetRef == "" {
		t.Errorf("Await() = %+v, want completed with asset", r)
	}
}

func TestSubmitRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewQueueClient(srv.URL, srv.Client())
	if _, err := c.Submit(context.Background(), "fal-ai/veo3", map[string]interface{}{}); err == nil {
		t.Fatal("Submit() error = nil, want failure on 503")
	}
}

func TestAwaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{State: StateRunning})
	}))
	defer srv.Close()

	c := NewQueueClient(srv.URL, srv.Client())
	if _, err := Await(context.Background(), c, "req-9", time.Millisecond, 10*time.Millisecond); err == nil {
		t.Fatal("Await() error = nil, want timeout")
	}
}
