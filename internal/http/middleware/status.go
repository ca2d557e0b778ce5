package middleware

import "github.com/sifan077/shortener/internal/app/apperror"

func statusOf(err error) (int, bool) {
	if e, ok := apperror.As(err); ok {
		return e.Status(), true
	}
	return 0, false
}
