package access

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"github.com/denismitr/mockup/internal/media"
	"github.com/pkg/errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	TokenParam   = "token"
	ExpiresParam = "expires"
)

var (
	ErrNoSecret   = errors.New("access secret is empty")
	ErrBadQuery   = errors.New("bad signed url query")
	ErrBadBaseURL = errors.New("bad signed url base")
)

// Signer issues and checks time boxed file access tokens. The secret and
// the clock are the only state.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// New makes a signer. A nil clock means time.Now.
func New(secret []byte, clock func() time.Time) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	if clock == nil {
		clock = time.Now
	}

	return &Signer{
		secret: append([]byte(nil), secret...),
		now:    clock,
	}, nil
}

func (s *Signer) Issue(assetID media.ID, fileName string, ttl time.Duration) media.AccessToken {
	expiresAt := s.now().Add(ttl).Unix()

	return media.AccessToken{
		AssetID:   assetID,
		FileName:  fileName,
		ExpiresAt: expiresAt,
		MAC:       s.mac(assetID, fileName, expiresAt),
	}
}

// Verify never fails loudly: an expired or forged token is just false.
// A token is still valid in the second it expires.
func (s *Signer) Verify(assetID media.ID, fileName string, expiresAt int64, mac string) bool {
	if expiresAt < s.now().Unix() {
		return false
	}

	expected := s.mac(assetID, fileName, expiresAt)

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(mac)))
}

func (s *Signer) VerifyToken(t media.AccessToken) bool {
	return s.Verify(t.AssetID, t.FileName, t.ExpiresAt, t.MAC)
}

// SignedURL appends <assetID>/<fileName>?token=..&expires=.. to base.
func (s *Signer) SignedURL(base string, t media.AccessToken) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(ErrBadBaseURL, "%s: %v", base, err)
	}

	u = u.JoinPath(t.AssetID.String(), t.FileName)

	q := u.Query()
	q.Set(TokenParam, t.MAC)
	q.Set(ExpiresParam, strconv.FormatInt(t.ExpiresAt, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ParseQuery reads the mac and expiry a signed url carries.
func ParseQuery(values url.Values) (string, int64, error) {
	mac := values.Get(TokenParam)
	if mac == "" {
		return "", 0, errors.Wrap(ErrBadQuery, "token is missing")
	}

	expiresAt, err := strconv.ParseInt(values.Get(ExpiresParam), 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(ErrBadQuery, "expires: %v", err)
	}

	return mac, expiresAt, nil
}

func (s *Signer) mac(assetID media.ID, fileName string, expiresAt int64) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(assetID.String() + "|" + fileName + "|" + strconv.FormatInt(expiresAt, 10)))

	return hex.EncodeToString(h.Sum(nil))
}
