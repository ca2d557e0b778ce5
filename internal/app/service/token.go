package service

import "github.com/lithammer/shortuuid/v4"

const (
	TokenLength      = 6
	maxTokenAttempts = 10
)

// TokenGenerator draws candidate short tokens.
type TokenGenerator interface {
	Generate() string
}

// ShortUUIDGenerator cuts a random base57 shortuuid down to TokenLength characters.
type ShortUUIDGenerator struct{}

func (ShortUUIDGenerator) Generate() string {
	return shortuuid.New()[:TokenLength]
}
