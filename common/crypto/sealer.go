package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fernet/fernet-go"
)

// Sealer encrypts and decrypts integration credential maps as fernet tokens.
// The raw key material is padded or truncated to exactly 32 bytes and then
// base64url-encoded, so existing sealed credentials keep decrypting when the
// configured key is shorter than 32 bytes.
type Sealer struct {
	key *fernet.Key
}

// NewSealer builds a sealer from raw key material
func NewSealer(rawKey string) (*Sealer, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	padded := make([]byte, 32)
	copy(padded, []byte(rawKey))

	key, err := fernet.DecodeKey(base64.URLEncoding.EncodeToString(padded))
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// Seal serializes and encrypts a credential map into a fernet token
func (s *Sealer) Seal(credentials map[string]interface{}) (string, error) {
	data, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	token, err := fernet.EncryptAndSign(data, s.key)
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}

	return string(token), nil
}

// Unseal decrypts a fernet token back into a credential map
func (s *Sealer) Unseal(sealed string) (map[string]interface{}, error) {
	// TTL 0 disables token expiry; credentials live until rotated.
	data := fernet.VerifyAndDecrypt([]byte(sealed), 0, []*fernet.Key{s.key})
	if data == nil {
		return nil, fmt.Errorf("credential token failed verification")
	}

	var credentials map[string]interface{}
	if err := json.Unmarshal(data, &credentials); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}

	return credentials, nil
}
