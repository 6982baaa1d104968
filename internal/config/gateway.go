package config

import (
	"fmt"
	"sort"
	"strings"

	"gwprov/internal/gateway"
)

// Link types select which gateway address is used.
const (
	LinkExternal = "external"
	LinkInternal = "internal"
)

// GatewayConfig addresses one gateway console.
type GatewayConfig struct {
	URL      string `yaml:"url" validate:"required,url"`
	LocalURL string `yaml:"local_url" validate:"omitempty,url"` // used with link_type internal
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Gateway returns console credentials for id, picking the address by the
// configured link type. Internal falls back to the external URL when no
// local URL is set.
func (c *Config) Gateway(id string) (gateway.Credentials, error) {
	g, ok := c.Gateways[id]
	if !ok {
		return gateway.Credentials{}, fmt.Errorf("gateway %s: %w", id, ErrUnknownGateway)
	}
	url := g.URL
	if isInternal(c.Run.LinkType) && g.LocalURL != "" {
		url = g.LocalURL
	}
	user := g.User
	if user == "" {
		user = "root"
	}
	return gateway.Credentials{ID: id, URL: url, User: user, Password: g.Password}, nil
}

// GatewayIDs returns the configured gateway IDs in order.
func (c *Config) GatewayIDs() []string {
	ids := make([]string, 0, len(c.Gateways))
	for id := range c.Gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isInternal(link string) bool {
	switch strings.ToLower(link) {
	case LinkInternal, "local":
		return true
	}
	return false
}
