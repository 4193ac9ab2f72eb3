package fortigate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newTestClient starts a TLS test server and returns a Client pointed at it
// plus the bare host:port fgAddr the CMDB request builders expect (they
// always hardcode the https:// scheme themselves).
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	c := New("test-token", 2*time.Second, zerolog.Nop())
	fgAddr := strings.TrimPrefix(srv.URL, "https://")
	return c, fgAddr
}

func TestCreateIPSendsBearerTokenAndSubnet(t *testing.T) {
	var gotAuth, gotBody string
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotBody = body["subnet"]
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"mkey": "jdoe"})
	})

	ok := c.CreateIP(context.Background(), fgAddr, "jdoe", "10.0.0.5")
	if !ok {
		t.Fatal("CreateIP() = false, want true")
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization header = %q, want Bearer test-token", gotAuth)
	}
	if gotBody != "10.0.0.5 255.255.255.255" {
		t.Errorf("subnet = %q, want host route", gotBody)
	}
}

func TestCreateIPSkippedWhenNoIPv4(t *testing.T) {
	called := false
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	ok := c.CreateIP(context.Background(), fgAddr, "jdoe", "")
	if !ok {
		t.Fatal("CreateIP() with empty ipv4 = false, want true (no-op success)")
	}
	if called {
		t.Fatal("CreateIP() should not call the gateway when ipv4 is empty")
	}
}

func TestCreatePolicyReturnsMKeyOnSuccess(t *testing.T) {
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"mkey": float64(17)})
	})

	result := c.CreatePolicy(context.Background(), fgAddr, "jdoe", "jdoe", DefaultDenyTemplate)
	if !result.OK || result.MKey != 17 {
		t.Fatalf("CreatePolicy() = %+v, want {MKey:17 OK:true}", result)
	}
}

func TestCreatePolicyFailsOnNon2xx(t *testing.T) {
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result := c.CreatePolicy(context.Background(), fgAddr, "jdoe", "jdoe", DefaultDenyTemplate)
	if result.OK {
		t.Fatal("CreatePolicy() on 500 response = OK:true, want false")
	}
}

func TestEditPolicyAddAppendsMemberWithoutDuplication(t *testing.T) {
	var postedSrcAddr []interface{}
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"srcaddr":  []interface{}{map[string]interface{}{"name": "alice"}},
				"srcaddr6": []interface{}{map[string]interface{}{"name": "alicev6"}},
			})
		case http.MethodPost:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			postedSrcAddr, _ = body["srcaddr"].([]interface{})
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"mkey": float64(5)})
		}
	})

	_, ok := c.EditPolicy(context.Background(), fgAddr, 5, EditAdd, "bob", "")
	if !ok {
		t.Fatal("EditPolicy(add) = ok:false")
	}
	if len(postedSrcAddr) != 2 {
		t.Fatalf("posted srcaddr has %d members, want 2 (alice, bob)", len(postedSrcAddr))
	}
}

func TestEditPolicyNotFoundFails(t *testing.T) {
	c, fgAddr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, ok := c.EditPolicy(context.Background(), fgAddr, 99, EditAdd, "bob", "")
	if ok {
		t.Fatal("EditPolicy() on a missing target = ok:true, want false")
	}
}
