// Package auth reads the current user's identity from the session token.
//
// The token is issued and verified by the platform's auth service; the client
// only decodes its claims to learn who "self" is. It never validates signatures.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims are the identity claims the platform puts in session tokens.
type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Identity decodes token and returns the participant it belongs to.
// The subject claim is used when userId is absent.
func Identity(token string) (models.Participant, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return models.Participant{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.Participant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return models.Participant{}, fmt.Errorf("%w: no user id claim", ErrInvalidToken)
	}

	return models.Participant{
		ID:     id,
		Name:   claims.Name,
		Role:   models.Role(claims.Role),
		Avatar: claims.Avatar,
	}, nil
}
