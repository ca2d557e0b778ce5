package validator

import (
	"strings"

	"github.com/sifan077/shortener/internal/app/apperror"
)

const (
	MinAliasLength = 3
	MaxAliasLength = 20
)

var reservedAliases = map[string]struct{}{
	"admin": {}, "api": {}, "auth": {}, "login": {}, "logout": {},
	"register": {}, "dashboard": {}, "settings": {}, "profile": {}, "help": {},
	"about": {}, "terms": {}, "privacy": {}, "contact": {}, "support": {},
}

// AliasResult describes an accepted custom alias.
type AliasResult struct {
	Valid  bool   `json:"is_valid"`
	Alias  string `json:"alias"`
	Length int    `json:"length"`
}

// ValidateAlias enforces length, character set and the reserved-word list.
func ValidateAlias(alias string) (*AliasResult, error) {
	const field = "custom_alias"

	if alias == "" {
		return nil, apperror.Validation("Custom alias cannot be empty", field, nil)
	}
	n := len(alias)
	if n < MinAliasLength {
		return nil, apperror.Validation("Custom alias must be at least 3 characters long", field, map[string]any{
			"min_length":     MinAliasLength,
			"current_length": n,
		})
	}
	if n > MaxAliasLength {
		return nil, apperror.Validation("Custom alias must be at most 20 characters long", field, map[string]any{
			"max_length":     MaxAliasLength,
			"current_length": n,
		})
	}
	if !isAlphanumeric(alias) {
		return nil, apperror.Validation("Custom alias must contain only alphanumeric characters", field, map[string]any{
			"alias": alias,
		})
	}
	if _, ok := reservedAliases[strings.ToLower(alias)]; ok {
		return nil, apperror.Validation("Custom alias '"+alias+"' is reserved", field, map[string]any{
			"alias": alias,
		})
	}
	return &AliasResult{Valid: true, Alias: alias, Length: n}, nil
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
