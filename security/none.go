package security

import (
	"bytes"
	"context"

	"github.com/c360/fleetbus/provider"
)

// None passes bodies through unchanged. For closed test networks only.
type None struct{}

var _ provider.SecuritySigner = None{}

// Encode returns a copy of body.
func (None) Encode(_ context.Context, body []byte) ([]byte, error) {
	return bytes.Clone(body), nil
}

// Decode returns a copy of raw.
func (None) Decode(_ context.Context, raw []byte) ([]byte, error) {
	return bytes.Clone(raw), nil
}
