package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
)

func init() {
	// waitlist_email applies the same normalization and syntax rule as the
	// service, so malformed addresses are rejected at the boundary.
	if err := httputil.Validator().RegisterValidation("waitlist_email", func(fl validator.FieldLevel) bool {
		return domain.ValidEmail(domain.NormalizeEmail(fl.Field().String()))
	}); err != nil {
		panic(err)
	}
}
