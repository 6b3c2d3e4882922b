package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Payload is what a QR token carries.
type Payload struct {
	Date       string
	Checkpoint string
	IssuedAt   time.Time
}

type claims struct {
	Date       string `json:"date"`
	Checkpoint string `json:"checkpoint"`
	jwt.RegisteredClaims
}

// Codec signs and verifies (date, checkpoint) payloads. Expiry is decided
// at verification time against the caller's max age, so the same secret
// serves any TTL the teacher-side display is configured with.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue serializes and signs the payload with the current timestamp.
func (c *Codec) Issue(date, checkpoint string) (string, error) {
	cl := claims{
		Date:       date,
		Checkpoint: checkpoint,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now().UTC()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
}

// Verify checks the signature and the token age. Pure computation, no I/O.
func (c *Codec) Verify(tokenStr string, maxAge time.Duration) (Payload, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Payload{}, ErrTokenInvalid
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || cl.IssuedAt == nil || cl.Date == "" || cl.Checkpoint == "" {
		return Payload{}, ErrTokenInvalid
	}
	if c.now().Sub(cl.IssuedAt.Time) > maxAge {
		return Payload{}, ErrTokenExpired
	}

	return Payload{
		Date:       cl.Date,
		Checkpoint: cl.Checkpoint,
		IssuedAt:   cl.IssuedAt.Time,
	}, nil
}
