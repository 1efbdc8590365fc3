package helpers

import (
	"strings"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizePhone strips common separators and returns the number in E.164 form.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	phone := b.String()
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	if err := validate.Var(phone, "required,e164"); err != nil {
		return "", apierrors.NewAPIError(400, apierrors.ErrInvalidPhoneFormat)
	}
	return phone, nil
}

func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", apierrors.NewAPIError(400, apierrors.ErrInvalidEmailFormat)
	}
	return email, nil
}

// MaskTarget hides most of a phone number or email address for listings.
func MaskTarget(method models.MFAMethod, target string) string {
	switch method {
	case models.MFAMethodSMS:
		if len(target) <= 4 {
			return target
		}
		return strings.Repeat("*", len(target)-4) + target[len(target)-4:]
	case models.MFAMethodEmail:
		local, domain, ok := strings.Cut(target, "@")
		if !ok || local == "" {
			return target
		}
		return local[:1] + "***@" + domain
	default:
		return ""
	}
}
