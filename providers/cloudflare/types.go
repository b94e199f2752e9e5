package cloudflare

import "encoding/json"

// apiError represents an error from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// resultInfo is the pagination block of list responses.
type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success    bool            `json:"success"`
	Errors     []apiError      `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info,omitempty"`
}

type accountResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// zoneResult represents a zone from the Cloudflare API.
type zoneResult struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Status  string        `json:"status"`
	Paused  bool          `json:"paused"`
	Account accountResult `json:"account"`
}

type recordMeta struct {
	ReadOnly bool `json:"read_only"`
}

// dnsRecord represents a DNS record from the Cloudflare API.
type dnsRecord struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Name     string     `json:"name"`
	Content  string     `json:"content"`
	TTL      int        `json:"ttl"`
	Priority *int       `json:"priority,omitempty"`
	Proxied  bool       `json:"proxied"`
	Meta     recordMeta `json:"meta"`
}

// recordRequest is the body for creating or patching a DNS record.
type recordRequest struct {
	Type     string  `json:"type,omitempty"`
	Name     *string `json:"name,omitempty"`
	Content  *string `json:"content,omitempty"`
	TTL      *int    `json:"ttl,omitempty"`
	Priority *int    `json:"priority,omitempty"`
	Proxied  *bool   `json:"proxied,omitempty"`
}

type zonePatch struct {
	Paused bool `json:"paused"`
}
