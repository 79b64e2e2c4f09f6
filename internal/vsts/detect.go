package vsts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/majorcontext/gitcred/internal/log"
	"github.com/majorcontext/gitcred/internal/store"
)

// HostSuffix is the public domain suffix of managed Team Services hosts.
const HostSuffix = "visualstudio.com"

// tenantHeader carries the backing tenant identity on responses from
// managed hosts.
const tenantHeader = "X-VSS-ResourceTenant"

// DetectAuthority classifies the target host. Hosts outside the managed
// platform return (false, zero) without any network access. For managed
// hosts a single HEAD request, with redirects disabled, reads the resource
// tenant header: the zero UUID identifies a consumer (MSA) authority, any
// other value an organizational directory tenant. A missing or unparsable
// header yields (false, zero) so callers can fall back to basic auth.
// Transport failures are returned as errors, never swallowed; the caller's
// backend choice depends on seeing them.
func (a *Authority) DetectAuthority(ctx context.Context, target *url.URL) (bool, uuid.UUID, error) {
	if err := store.ValidateTargetURI(target); err != nil {
		return false, uuid.Nil, err
	}
	host := strings.ToLower(target.Hostname())
	if !strings.HasSuffix(host, HostSuffix) {
		return false, uuid.Nil, nil
	}

	req, err := a.newRequest(ctx, http.MethodHead, fmt.Sprintf("https://%s/", a.requestHost(target)), nil, nil)
	if err != nil {
		return false, uuid.Nil, err
	}

	client := *a.client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("authority detection for %s: %w", host, err)
	}
	resp.Body.Close()

	raw := resp.Header.Get(tenantHeader)
	if raw == "" {
		log.Debug("managed host reported no resource tenant", "target", host)
		return false, uuid.Nil, nil
	}
	tenant, err := uuid.Parse(raw)
	if err != nil {
		log.Debug("resource tenant header is not a UUID", "target", host, "value", raw)
		return false, uuid.Nil, nil
	}
	log.Debug("authority detected", "target", host, "tenant", tenant)
	return true, tenant, nil
}

// DetectAuthority classifies the target host using the default client.
func DetectAuthority(ctx context.Context, target *url.URL) (bool, uuid.UUID, error) {
	return NewAuthority().DetectAuthority(ctx, target)
}
