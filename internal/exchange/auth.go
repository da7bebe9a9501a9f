package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Auth signs REST requests with the venue's HMAC-SHA256 scheme: the request
// query string, extended with a millisecond timestamp, is signed with the
// API secret and the hex digest is appended as the `signature` parameter.
type Auth struct {
	apiKey string
	secret []byte
}

// NewAuth creates a signer from the configured credentials.
func NewAuth(apiKey, secret string) (*Auth, error) {
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("api key and secret are required for live trading")
	}
	return &Auth{apiKey: apiKey, secret: []byte(secret)}, nil
}

// APIKey returns the key sent in the X-MBX-APIKEY header.
func (a *Auth) APIKey() string { return a.apiKey }

// SignQuery stamps the query with the current timestamp and appends the
// HMAC signature. The input values are not mutated.
func (a *Auth) SignQuery(params url.Values) url.Values {
	signed := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			signed.Add(k, v)
		}
	}
	signed.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(signed.Encode()))
	signed.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return signed
}
