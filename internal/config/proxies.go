package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ProxyList is the set of named proxies watches may select. It is shared by
// the registry (validation) and the checker (lookup) and can be replaced at
// runtime when the proxies file changes.
type ProxyList struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewProxyList(entries map[string]string) *ProxyList {
	p := &ProxyList{}
	p.Replace(entries)
	return p
}

// Has reports whether name is a configured proxy.
func (p *ProxyList) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[name]
	return ok
}

// Lookup returns the proxy URL for name.
func (p *ProxyList) Lookup(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.entries[name]
	return u, ok
}

// Names returns the configured proxy names, sorted.
func (p *ProxyList) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.entries))
	for n := range p.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Replace swaps the whole set atomically.
func (p *ProxyList) Replace(entries map[string]string) {
	m := make(map[string]string, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	p.mu.Lock()
	p.entries = m
	p.mu.Unlock()
}

// ParseProxies parses "name=url,name2=url2".
func ParseProxies(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("proxy %q: expected name=url", part)
		}
		if err := checkProxyURL(raw); err != nil {
			return nil, fmt.Errorf("proxy %q: %w", name, err)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(raw)
	}
	return out, nil
}

// proxiesFile is the YAML layout of PROXIES_FILE:
//
//	proxies:
//	  eu: http://proxy-eu:3128
//	  us: socks5://proxy-us:1080
type proxiesFile struct {
	Proxies map[string]string `yaml:"proxies"`
}

// LoadProxiesFile reads and validates a proxies YAML file.
func LoadProxiesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proxies file: %w", err)
	}
	var f proxiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse proxies file: %w", err)
	}
	for name, raw := range f.Proxies {
		if err := checkProxyURL(raw); err != nil {
			return nil, fmt.Errorf("proxy %q: %w", name, err)
		}
	}
	if f.Proxies == nil {
		f.Proxies = map[string]string{}
	}
	return f.Proxies, nil
}

func checkProxyURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("proxy url %q must be absolute", raw)
	}
	return nil
}

// Merge returns base overlaid with over.
func Merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
