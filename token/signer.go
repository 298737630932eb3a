package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs the tokens of one Use and hands out the key that verifies them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	Keyfunc(token *jwt.Token) (any, error)
	Method() jwt.SigningMethod
}

// hmacSigner signs with HS256 and stamps the token use into the kid header,
// so a token minted for one use is rejected before its signature is checked by the other.
type hmacSigner struct {
	use    Use
	secret []byte
}

func newHMACSigner(use Use, secret string) (*hmacSigner, error) {
	if secret == "" {
		return nil, errors.Errorf("[token.newHMACSigner] %s secret is required", use)
	}
	return &hmacSigner{use: use, secret: []byte(secret)}, nil
}

func (h *hmacSigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = string(h.use)
	signed, err := t.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrapf(err, "[hmacSigner.Sign] %s", h.use)
	}
	return signed, nil
}

func (h *hmacSigner) Keyfunc(t *jwt.Token) (any, error) {
	if kid, _ := t.Header["kid"].(string); kid != string(h.use) {
		return nil, errors.Errorf("token kid %q is not %q", kid, h.use)
	}
	return h.secret, nil
}

func (h *hmacSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
