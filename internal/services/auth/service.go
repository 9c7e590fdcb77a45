package auth

import (
	"context"
	"fmt"
)

// Service validates access tokens issued by the account gateway. Token
// issuance lives elsewhere; this backend only needs to know who is calling.
type Service struct {
	jwt *JWTManager
}

func NewService(jwt *JWTManager) *Service {
	return &Service{jwt: jwt}
}

func (s *Service) ValidateAccessToken(_ context.Context, token string) (AccessClaims, error) {
	if s.jwt == nil {
		return AccessClaims{}, fmt.Errorf("jwt manager is nil")
	}
	return s.jwt.ParseAccessToken(token)
}
