package auth

import (
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SharedSecretKeyID identifies the HMAC key inside the verification set.
const SharedSecretKeyID = "shopgate-shared-secret"

// ErrNoKeys is returned when neither a secret nor a key set file is configured.
var ErrNoKeys = errors.New("auth: no verification keys configured")

// KeySource describes where verification keys come from.
type KeySource struct {
	Secret    string
	Algorithm string
	JWKSFile  string
}

// LoadKeys builds one jwk.Set holding the shared secret (if any) and every
// key in the JWKS file (if any). Keys carrying an "alg" are only ever used
// with that algorithm.
func LoadKeys(src KeySource) (jwk.Set, error) {
	set := jwk.NewSet()

	if src.Secret != "" {
		key, err := secretKey(src.Secret, src.Algorithm)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("auth: add shared secret: %w", err)
		}
	}

	if src.JWKSFile != "" {
		fileSet, err := jwk.ReadFile(src.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("auth: read jwks file %s: %w", src.JWKSFile, err)
		}
		for i := range fileSet.Len() {
			key, _ := fileSet.Key(i)
			if err := set.AddKey(key); err != nil {
				return nil, fmt.Errorf("auth: add jwks key %d: %w", i, err)
			}
		}
	}

	if set.Len() == 0 {
		return nil, ErrNoKeys
	}
	return set, nil
}

func secretKey(secret, algorithm string) (jwk.Key, error) {
	var alg jwa.SignatureAlgorithm
	if err := alg.Accept(algorithm); err != nil {
		return nil, fmt.Errorf("auth: algorithm %q: %w", algorithm, err)
	}
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
	default:
		return nil, fmt.Errorf("auth: shared secret requires an HMAC algorithm, got %s", alg)
	}

	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("auth: shared secret: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, SharedSecretKeyID); err != nil {
		return nil, err
	}
	return key, nil
}
