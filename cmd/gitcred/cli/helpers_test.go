package cli

import (
	"strings"
	"testing"

	"github.com/majorcontext/gitcred/internal/config"
	"github.com/majorcontext/gitcred/internal/secret"
	"github.com/majorcontext/gitcred/internal/store"
)

func TestReadHelperRequest(t *testing.T) {
	input := "protocol=https\nhost=team.visualstudio.com\npath=project/_git/repo\nusername=user\npassword=se=cret\n\nignored=after-blank\n"
	req, err := readHelperRequest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readHelperRequest: %v", err)
	}
	if req.Protocol != "https" || req.Host != "team.visualstudio.com" {
		t.Errorf("protocol/host = %q/%q", req.Protocol, req.Host)
	}
	if req.Path != "project/_git/repo" {
		t.Errorf("path = %q", req.Path)
	}
	if req.Username != "user" {
		t.Errorf("username = %q", req.Username)
	}
	if req.Password != "se=cret" {
		t.Errorf("password = %q, values may contain '='", req.Password)
	}
}

func TestReadHelperRequestIgnoresUnknownKeys(t *testing.T) {
	req, err := readHelperRequest(strings.NewReader("host=example.visualstudio.com\nwwwauth[]=Basic realm=x\n"))
	if err != nil {
		t.Fatalf("readHelperRequest: %v", err)
	}
	if req.Host != "example.visualstudio.com" {
		t.Errorf("host = %q", req.Host)
	}
}

func TestReadHelperRequestErrors(t *testing.T) {
	if _, err := readHelperRequest(strings.NewReader("protocol=https\n\n")); err == nil {
		t.Error("expected error for request without host")
	}
	if _, err := readHelperRequest(strings.NewReader("not a key value line\n")); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		name string
		req  helperRequest
		want string
	}{
		{"defaults to https", helperRequest{Host: "team.visualstudio.com"}, "https://team.visualstudio.com"},
		{"keeps protocol", helperRequest{Protocol: "http", Host: "team.visualstudio.com"}, "http://team.visualstudio.com"},
		{"appends path", helperRequest{Host: "team.visualstudio.com", Path: "org/_git/repo"}, "https://team.visualstudio.com/org/_git/repo"},
		{"normalizes leading slash", helperRequest{Host: "h.visualstudio.com", Path: "/p"}, "https://h.visualstudio.com/p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := tt.req.targetURL()
			if err != nil {
				t.Fatalf("targetURL: %v", err)
			}
			if target.String() != tt.want {
				t.Errorf("targetURL = %q, want %q", target, tt.want)
			}
		})
	}
}

func TestWriteHelperResponse(t *testing.T) {
	var out strings.Builder
	cred, err := secret.NewCredential(secret.PATUsername, "pat-value")
	if err != nil {
		t.Fatal(err)
	}
	writeHelperResponse(&out, cred)
	want := "username=PersonalAccessToken\npassword=pat-value\n"
	if out.String() != want {
		t.Errorf("response = %q, want %q", out.String(), want)
	}
}

func TestOpenStores(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg := config.DefaultGlobalConfig()
		cfg.Store.Backend = "memory"
		patStore, refreshStore, err := openStores(cfg)
		if err != nil {
			t.Fatalf("openStores: %v", err)
		}
		if _, ok := patStore.(*store.SecretCache); !ok {
			t.Errorf("pat store = %T, want *store.SecretCache", patStore)
		}
		if _, ok := refreshStore.(*store.SecretCache); !ok {
			t.Errorf("refresh store = %T, want *store.SecretCache", refreshStore)
		}
	})

	t.Run("file", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		cfg := config.DefaultGlobalConfig()
		cfg.Store.Backend = "file"
		patStore, _, err := openStores(cfg)
		if err != nil {
			t.Fatalf("openStores: %v", err)
		}
		if _, ok := patStore.(*store.FileStore); !ok {
			t.Errorf("pat store = %T, want *store.FileStore", patStore)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.DefaultGlobalConfig()
		cfg.Store.Backend = "sqlite"
		if _, _, err := openStores(cfg); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}
