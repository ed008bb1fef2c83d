package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JobTokenService mints the short-lived credential attached to a job at
// creation. Execute-time consumers validate it to resolve tenant-scoped
// enrichment data without re-authenticating the original caller.
type JobTokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewJobTokenService(secret string, ttl time.Duration) *JobTokenService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JobTokenService{secret: []byte(secret), ttl: ttl}
}

type JobClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// Mint issues an HS256 token scoped to one job.
func (s *JobTokenService) Mint(jobID, tenantID, userID string) (string, error) {
	now := time.Now()
	claims := JobClaims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses the token and checks it belongs to the given job and tenant.
// An expired token is not fatal to execution; callers treat it as "no
// enrichment available".
func (s *JobTokenService) Verify(token, jobID, tenantID string) (*JobClaims, error) {
	var claims JobClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject != jobID || claims.TenantID != tenantID {
		return nil, errors.New("token scope mismatch")
	}
	return &claims, nil
}
