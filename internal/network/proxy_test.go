package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix/xypriss/internal/config"
)

func newProxy(lb string, upstreams ...string) *Proxy {
	cfgUpstreams := make([]config.UpstreamConfig, 0, len(upstreams))
	for _, u := range upstreams {
		cfgUpstreams = append(cfgUpstreams, config.UpstreamConfig{URL: u, Weight: 1})
	}
	return NewProxy(config.ProxyConfig{
		Enabled:            true,
		LoadBalancing:      lb,
		Upstreams:          cfgUpstreams,
		UnhealthyThreshold: 3,
		HealthyThreshold:   2,
	})
}

func TestProxyRoundRobinCyclesUpstreams(t *testing.T) {
	p := newProxy("round-robin", "http://a", "http://b")
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		u, err := p.Select("")
		require.NoError(t, err)
		seen[u.url]++
	}
	assert.Equal(t, 2, seen["http://a"])
	assert.Equal(t, 2, seen["http://b"])
}

func TestProxyExcludesUnhealthyUpstream(t *testing.T) {
	p := newProxy("round-robin", "http://a", "http://b")
	p.upstreams[0].healthy.Store(false)

	for i := 0; i < 3; i++ {
		u, err := p.Select("")
		require.NoError(t, err)
		assert.Equal(t, "http://b", u.url)
	}
}

func TestProxyNoHealthyUpstreamErrors(t *testing.T) {
	p := newProxy("round-robin", "http://a")
	p.upstreams[0].healthy.Store(false)

	_, err := p.Select("")
	assert.ErrorIs(t, err, ErrNoHealthyUpstream)
}

func TestProxyIPHashIsStable(t *testing.T) {
	p := newProxy("ip-hash", "http://a", "http://b", "http://c")
	u1, err := p.Select("10.0.0.1")
	require.NoError(t, err)
	u2, err := p.Select("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, u1.url, u2.url)
}
