package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthLiveEndpoint(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	resp, env := doJSON(t, client, http.MethodGet, baseURL+"/health/live", nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("health live: status=%d success=%v", resp.StatusCode, env.Success)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode live data: %v", err)
	}
	if data["status"] != "ok" {
		t.Fatalf("status = %q, want ok", data["status"])
	}
}
