package security

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/provider"
)

// EnvPSK overrides the psk plugin setting.
const EnvPSK = "FLEETBUS_PSK"

// keyContext separates PSK-derived keys from any other use of the same material.
const keyContext = "fleetbus 2024 message signing v1"

// Envelope is the wire form of a sealed message.
type Envelope struct {
	ID     string `json:"msgid"`
	Sender string `json:"sender"`
	Time   int64  `json:"time"`
	Body   []byte `json:"body"`
	Hash   string `json:"hash"`
}

// Psk seals bodies with a keyed BLAKE3 hash derived from a pre-shared key.
// Every node sharing the key can open what any other node sealed.
type Psk struct {
	key    [32]byte
	sender string
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

var _ provider.SecuritySigner = (*Psk)(nil)

// NewPsk derives the signing key from material. sender is stamped on every
// envelope sealed by this node.
func NewPsk(material []byte, sender string, logger *slog.Logger) (*Psk, error) {
	if len(material) == 0 {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "pre-shared key is empty"),
			"Psk", "NewPsk", "key material")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Psk{
		sender: sender,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	blake3.DeriveKey(keyContext, material, p.key[:])
	return p, nil
}

// Encode seals body in an Envelope.
func (p *Psk) Encode(_ context.Context, body []byte) ([]byte, error) {
	env := Envelope{
		ID:     p.newID(),
		Sender: p.sender,
		Time:   p.now().Unix(),
		Body:   body,
	}

	sum, err := p.sum(&env)
	if err != nil {
		return nil, errors.WrapFatal(err, "Psk", "Encode", "hash envelope")
	}
	env.Hash = hex.EncodeToString(sum)

	out, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Psk", "Encode", "marshal envelope")
	}
	return out, nil
}

// Decode opens raw and returns the body.
func (p *Psk) Decode(ctx context.Context, raw []byte) ([]byte, error) {
	env, err := p.Open(ctx, raw)
	if err != nil {
		return nil, err
	}
	return env.Body, nil
}

// Open verifies raw and returns the whole envelope.
func (p *Psk) Open(_ context.Context, raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidData, err),
			"Psk", "Open", "unmarshal envelope")
	}

	got, err := hex.DecodeString(env.Hash)
	if err != nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrInvalidData, "hash is not hex"),
			"Psk", "Open", "decode hash")
	}

	want, err := p.sum(&env)
	if err != nil {
		return nil, errors.WrapFatal(err, "Psk", "Open", "hash envelope")
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		p.logger.Warn("Rejected message with bad hash", "sender", env.Sender, "msgid", env.ID)
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrInvalidData, "hash mismatch for message %s from %s", env.ID, env.Sender),
			"Psk", "Open", "verify hash")
	}

	return &env, nil
}

// sum hashes every envelope field except Hash.
func (p *Psk) sum(env *Envelope) ([]byte, error) {
	h, err := blake3.NewKeyed(p.key[:])
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00", env.ID, env.Sender, env.Time)
	_, _ = h.Write(env.Body)
	return h.Sum(nil), nil
}
