// Package security holds the message signers selected by the securityprovider
// setting.
//
// Security::Psk wraps each body in a JSON envelope carrying a message id, the
// sender identity, a timestamp and a keyed BLAKE3 hash over all of them. The
// hashing key is derived from the pre-shared key with BLAKE3 DeriveKey, so the
// configured string can be any length. Decode rejects envelopes whose hash does
// not verify with errors.ErrInvalidData.
//
// Security::None passes bodies through.
package security
