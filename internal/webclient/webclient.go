// Package webclient is the outbound HTTP layer shared by the backend
// client and the demo analyzer.
package webclient

import "context"

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}
