package vsts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// failTransport fails every request, proving a code path made no network
// calls.
type failTransport struct{ calls int }

func (f *failTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("network access not expected")
}

func TestDetectAuthorityUnmanagedHostNoNetwork(t *testing.T) {
	transport := &failTransport{}
	a := NewAuthority()
	a.HTTPClient = &http.Client{Transport: transport}

	managed, tenant, err := a.DetectAuthority(context.Background(), mustTarget(t, "https://unrelated.example.com/repo.git"))
	if err != nil {
		t.Fatalf("DetectAuthority: %v", err)
	}
	if managed {
		t.Error("unrelated host reported as managed")
	}
	if tenant != uuid.Nil {
		t.Errorf("tenant = %s, want zero", tenant)
	}
	if transport.calls != 0 {
		t.Errorf("network calls = %d, want 0", transport.calls)
	}
}

func TestDetectAuthorityTenants(t *testing.T) {
	orgTenant := uuid.MustParse("72f988bf-86f1-41af-91ab-2d7cd011db47")
	tests := []struct {
		name        string
		header      string
		wantManaged bool
		wantTenant  uuid.UUID
	}{
		{"consumer authority", "00000000-0000-0000-0000-000000000000", true, uuid.Nil},
		{"organizational tenant", orgTenant.String(), true, orgTenant},
		{"missing header", "", false, uuid.Nil},
		{"unparsable header", "not-a-uuid", false, uuid.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				if tt.header != "" {
					w.Header().Set("X-VSS-ResourceTenant", tt.header)
				}
			}))
			defer server.Close()

			a := testAuthority(server)
			managed, tenant, err := a.DetectAuthority(context.Background(), mustTarget(t, "https://Team.VisualStudio.Com/project"))
			if err != nil {
				t.Fatalf("DetectAuthority: %v", err)
			}
			if managed != tt.wantManaged || tenant != tt.wantTenant {
				t.Errorf("DetectAuthority = (%v, %s), want (%v, %s)", managed, tenant, tt.wantManaged, tt.wantTenant)
			}
		})
	}
}

func TestDetectAuthorityDoesNotFollowRedirects(t *testing.T) {
	tenant := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("redirect was followed to %s", r.URL.Path)
			return
		}
		w.Header().Set("X-VSS-ResourceTenant", tenant.String())
		w.Header().Set("Location", "/signin")
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	a := testAuthority(server)
	managed, got, err := a.DetectAuthority(context.Background(), mustTarget(t, "https://team.visualstudio.com"))
	if err != nil {
		t.Fatalf("DetectAuthority: %v", err)
	}
	if !managed || got != tenant {
		t.Errorf("DetectAuthority = (%v, %s), want (true, %s)", managed, got, tenant)
	}
}

func TestDetectAuthorityTransportErrorPropagates(t *testing.T) {
	a := NewAuthority()
	a.HTTPClient = &http.Client{Transport: &failTransport{}}
	if _, _, err := a.DetectAuthority(context.Background(), mustTarget(t, "https://team.visualstudio.com")); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}
