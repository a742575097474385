package domain

import "context"

// Transport fetches a raw JSON document from a service endpoint. body is
// marshaled as the JSON request payload; nil sends an empty request.
// Failures are reported as *TransportError.
type Transport interface {
	Fetch(ctx context.Context, endpoint string, body any) ([]byte, error)
}

// Document is one keyed message published to a downstream topic.
type Document struct {
	Key  string
	Body any
}
