// Package registertoken issues and validates register session tokens. An
// operator signs in to a register with a PIN; the resulting token carries the
// register binding and the finalize capability as explicit claims.
package registertoken

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"till/internal/platform/middleware"
	dErrors "till/pkg/domain-errors"
)

// Claims are the JWT claims of a register session token.
type Claims struct {
	OperatorID  string `json:"operator_id"`
	LocationID  string `json:"location_id"`
	RegisterID  string `json:"register_id"`
	CanFinalize bool   `json:"can_finalize"`
	jwt.RegisteredClaims
}

// Operator is a till operator with a hashed PIN and a finalize entitlement.
type Operator struct {
	ID          string
	DisplayName string
	PINHash     []byte
	CanFinalize bool
}

// OperatorStore looks up operators for sign-in.
type OperatorStore interface {
	FindOperator(ctx context.Context, operatorID string) (*Operator, error)
}

// Service handles register token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	operators  OperatorStore
	tokenTTL   time.Duration
}

func NewService(signingKey, issuer string, operators OperatorStore, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		operators:  operators,
		tokenTTL:   tokenTTL,
	}
}

// HashPIN derives the stored hash for an operator PIN.
func HashPIN(pin string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

// SignIn verifies the operator's PIN and issues a register-bound token.
func (s *Service) SignIn(ctx context.Context, operatorID, pin, locationID, registerID string) (string, error) {
	if operatorID == "" || pin == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "operator_id and pin are required")
	}
	if locationID == "" || registerID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "location_id and register_id are required")
	}

	operator, err := s.operators.FindOperator(ctx, operatorID)
	if err != nil {
		// Same answer for unknown operator and wrong PIN.
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid operator credentials")
	}
	if err := bcrypt.CompareHashAndPassword(operator.PINHash, []byte(pin)); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid operator credentials")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorID:  operator.ID,
		LocationID:  locationID,
		RegisterID:  registerID,
		CanFinalize: operator.CanFinalize,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign register token")
	}
	return signed, nil
}

// ValidateToken parses and verifies a register token, returning the claims the
// middleware attaches to requests.
func (s *Service) ValidateToken(tokenString string) (*middleware.RegisterClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.RegisterClaims{
		OperatorID:  claims.OperatorID,
		LocationID:  claims.LocationID,
		RegisterID:  claims.RegisterID,
		CanFinalize: claims.CanFinalize,
	}, nil
}
