package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

var optionsValidate *validator.Validate

func init() {
	optionsValidate = validator.New()
	_ = optionsValidate.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return waterfall.ValidateURL(fl.Field().String()) == nil
	})
}

// Options parameterizes one import operation.
type Options struct {
	// URL is the target collection URL records are posted to.
	URL string `json:"url" validate:"required,httpurl"`

	// Format names the codec of the payload. Only read by Import.
	Format string `json:"type" validate:"required,oneof=json csv mermaid"`

	// Filename is the uploaded file name; when set its extension must
	// match Format.
	Filename string `json:"filename,omitempty"`

	// ResolveRefs enables reference resolution against the target.
	ResolveRefs bool `json:"resolve_refs"`

	OnAmbiguous types.Policy `json:"on_ambiguous" validate:"omitempty,oneof=skip fail"`
	OnMissing   types.Policy `json:"on_missing" validate:"omitempty,oneof=skip fail"`
}

// DefaultOptions returns options with reference resolution enabled and both
// policies set to skip.
func DefaultOptions() Options {
	return Options{
		Format:      "json",
		ResolveRefs: true,
		OnAmbiguous: types.PolicySkip,
		OnMissing:   types.PolicySkip,
	}
}

// normalize lowercases the enumerated fields and fills empty policies.
func (o Options) normalize() Options {
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	o.OnAmbiguous = types.Policy(strings.ToLower(strings.TrimSpace(string(o.OnAmbiguous))))
	o.OnMissing = types.Policy(strings.ToLower(strings.TrimSpace(string(o.OnMissing))))
	if o.OnAmbiguous == "" {
		o.OnAmbiguous = types.PolicySkip
	}
	if o.OnMissing == "" {
		o.OnMissing = types.PolicySkip
	}
	return o
}

// validate checks o. Fields named in except are skipped.
func (o Options) validate(except ...string) error {
	var err error
	if len(except) > 0 {
		err = optionsValidate.StructExcept(o, except...)
	} else {
		err = optionsValidate.Struct(o)
	}
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Field() {
	case "URL":
		if fe.Tag() == "required" {
			return "missing required parameter: url"
		}
		return fmt.Sprintf("invalid url %q: must be an absolute http(s) URL", fe.Value())
	case "Format":
		return fmt.Sprintf("unsupported import type %q: allowed values are json, csv, mermaid", fe.Value())
	case "OnAmbiguous":
		name = "on_ambiguous"
	case "OnMissing":
		name = "on_missing"
	}
	return fmt.Sprintf("invalid %s mode %q: must be 'skip' or 'fail'", name, fe.Value())
}
