package event

import (
	"encoding/json"
	"fmt"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return domain.IsValidIdentity(fl.Field().String())
	})
	return v
}

// Decode unmarshals the envelope data into payload and validates its tags.
// Syntax problems are reported as ErrMalformedEvent, tag failures as ErrInvalidIdentity.
func Decode(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errors.ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidIdentity, err)
	}
	return nil
}

// DecodeIdentity reads an event whose data is a bare identity string.
func DecodeIdentity(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	if err := domain.ValidateIdentity(id); err != nil {
		return "", err
	}
	return id, nil
}
