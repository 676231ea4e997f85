package consul

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	priorityKey  = "priority"
	isHTTPSSLKey = "HTTPSSL"
)

// Provider resolves a classifier service base URL from consul health API.
// Resolved URL is cached and refreshed on a TTL.
type Provider struct {
	consul  *api.Client
	srvName string

	lock    *sync.Mutex
	url     string
	checked time.Time
	ttl     time.Duration
}

// NewProvider creates consul URL provider
func NewProvider(cfg *api.Config, srvNameInConsul string) (*Provider, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if srvNameInConsul == "" {
		return nil, fmt.Errorf("no srv name")
	}
	return newProvider(c, srvNameInConsul), nil
}

func newProvider(c *api.Client, srvNameInConsul string) *Provider {
	goapp.Log.Info().Str("service", srvNameInConsul).Msg("cfg: srv name in consul")
	return &Provider{consul: c, srvName: srvNameInConsul, lock: &sync.Mutex{}, ttl: time.Second * 30}
}

// Get returns base URL of a healthy service instance
func (p *Provider) Get(ctx context.Context) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.url != "" && time.Since(p.checked) < p.ttl {
		return p.url, nil
	}
	entries, _, err := p.consul.Health().Service(p.srvName, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		if p.url != "" {
			goapp.Log.Warn().Err(err).Str("service", p.srvName).Msg("consul query failed - use cached URL")
			return p.url, nil
		}
		return "", multierr.Append(fmt.Errorf("can't query consul for `%s`", p.srvName), err)
	}
	url, err := selectURL(entries)
	if err != nil {
		return "", fmt.Errorf("no active srv `%s`: %w", p.srvName, err)
	}
	p.url, p.checked = url, time.Now()
	return url, nil
}

func selectURL(entries []*api.ServiceEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instances")
	}
	i, err := getRandomByPriority(entries)
	if err != nil {
		return "", err
	}
	e := entries[i]
	addr := e.Service.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}
	if addr == "" {
		return "", fmt.Errorf("no address for instance %s", e.Service.ID)
	}
	scheme := "http"
	if paramTrue(e.Service.Meta[isHTTPSSLKey]) {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, addr, e.Service.Port), nil
}

func getRandomByPriority(entries []*api.ServiceEntry) (int, error) {
	prMax := 0.0
	prs := make([]float64, len(entries))
	var errAll error
	for i, e := range entries {
		pr := 1.0
		if s, ok := e.Service.Meta[priorityKey]; ok {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				errAll = multierr.Append(errAll, fmt.Errorf("can't parse priority '%s': %w", s, err))
			} else if v > 0 {
				pr = v
			}
		}
		prs[i] = pr
		prMax += pr
	}
	if prMax <= 0 {
		return 0, multierr.Append(errAll, fmt.Errorf("no usable priorities"))
	}
	r := rand.Float64() * prMax
	for i, pr := range prs {
		r -= pr
		if r <= 0 {
			return i, nil
		}
	}
	return len(entries) - 1, nil
}

func paramTrue(s string) bool {
	return s == "true" || s == "1"
}
