package model

import (
	"strings"
	"time"
)

// WildcardDomain in a project's allow-list admits events from any origin.
const WildcardDomain = "*"

// Project groups API keys and events under a single owner.
type Project struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	AllowedDomains []string  `json:"allowed_domains"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AllowsDomain reports whether events carrying the given origin may be
// ingested. Entries are compared after trimming surrounding whitespace.
func (p *Project) AllowsDomain(domain string) bool {
	for _, d := range p.AllowedDomains {
		d = strings.TrimSpace(d)
		if d == WildcardDomain || d == domain {
			return true
		}
	}
	return false
}
