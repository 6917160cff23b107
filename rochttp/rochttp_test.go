package rochttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"goji.io"

	"github.com/daqline/readoutcard/roc"
	"github.com/daqline/readoutcard/sim"
)

const pageSize = roc.DefaultDmaPageSize

func testServer(t *testing.T) (*sim.Channel, *httptest.Server) {
	t.Helper()
	ch, err := sim.New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	mux := goji.NewMux()
	w := NewHTTPWrapper("/", ch)
	w.BindRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ch, srv
}

func TestStatus(t *testing.T) {
	_, srv := testServer(t)
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.CardType != "sim" {
		t.Errorf("expected card type sim, got %q", s.CardType)
	}
	if !s.TransferQueueEmpty || s.ReadyQueueSize != 0 {
		t.Errorf("expected empty queues, got %+v", s)
	}
}

func TestPushFillPop(t *testing.T) {
	_, srv := testServer(t)
	post := func(path string, body []byte) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := post("/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	sp, _ := json.Marshal(roc.Superpage{Offset: 0, Size: pageSize})
	if resp := post("/superpage", sp); resp.StatusCode != http.StatusOK {
		t.Fatalf("push: expected 200, got %d", resp.StatusCode)
	}
	if resp := post("/fill", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("fill: expected 200, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/superpage", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pop: expected 200, got %d", resp.StatusCode)
	}
	var got roc.Superpage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Ready || got.Received != pageSize {
		t.Errorf("expected a fully received superpage, got %+v", got)
	}

	if resp := post("/stop", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", resp.StatusCode)
	}
}

func TestPopEmpty(t *testing.T) {
	_, srv := testServer(t)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/superpage", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for an empty ready queue, got %d", resp.StatusCode)
	}
}

func TestPushInvalidSuperpage(t *testing.T) {
	_, srv := testServer(t)
	http.Post(srv.URL+"/start", "application/json", nil)
	sp, _ := json.Marshal(roc.Superpage{Offset: 3, Size: pageSize})
	resp, err := http.Post(srv.URL+"/superpage", "application/json", bytes.NewReader(sp))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a misaligned superpage, got %d", resp.StatusCode)
	}
}

func TestResetBadLevel(t *testing.T) {
	_, srv := testServer(t)
	resp, err := http.Post(srv.URL+"/reset?level=everything", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown reset level, got %d", resp.StatusCode)
	}
}

func TestTelemetryRoutes(t *testing.T) {
	_, srv := testServer(t)
	for _, path := range []string{"/serial", "/temperature", "/firmware", "/card-id"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
