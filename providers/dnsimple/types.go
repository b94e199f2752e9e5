package dnsimple

import sdk "github.com/dnsimple/dnsimple-go/dnsimple"

// Envelopes of the DNSimple v2 API. Payloads are the dnsimple-go types;
// the envelopes are local so the demo server can write the same format.

// ListResponse wraps a paginated list.
type ListResponse[T any] struct {
	Data       []T             `json:"data"`
	Pagination *sdk.Pagination `json:"pagination,omitempty"`
}

// DataResponse wraps a single object.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// RecordPatch is the body of a record update. Unlike
// sdk.ZoneRecordAttributes it can set a field to its zero value, such as
// an MX priority of 0.
type RecordPatch struct {
	Name     *string `json:"name,omitempty"`
	Content  *string `json:"content,omitempty"`
	TTL      *int    `json:"ttl,omitempty"`
	Priority *int    `json:"priority,omitempty"`
}
