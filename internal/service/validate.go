package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/community-events/internal/apperror"
)

// usernamePattern is the account name rule: letters, digits and underscores,
// 3 to 50 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

// validate is shared by every service. validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name ("image_url", not "ImageURL") so the
	// Field in the error matches what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	// maxbytes bounds the UTF-8 length, where max counts runes. bcrypt reads
	// at most 72 bytes of a password.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// messages for the tags whose wording the API fixes. Keyed by "field.tag".
var fieldMessages = map[string]string{
	"username.username": "Username must be 3-50 characters and contain only letters, numbers, and underscores",
	"email.email":       "Invalid email format",
	"password.min":      "Password must be at least 6 characters long",
	"password.maxbytes": "Password must be at most 72 bytes long",
	"capacity.gte":      "Capacity must be at least 1",
	"price.gte":         "Price cannot be negative",
	"price.lte":         "Price must be at most 99999999.99",
}

// validateStruct runs the struct tags and converts the first failure into an
// apperror validation error.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("service: validating input: %w", err)
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), messageFor(fe))
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "email":
		return "Invalid email format"
	}
	return label + " is invalid"
}

// humanize turns "image_url" into "Image url".
func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
