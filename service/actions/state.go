package actions

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Tier selects the generation model and the price of a generation.
type Tier string

const (
	TierStandard Tier = "standard"
	TierUltra    Tier = "ultra"
)

// MaxPromptLength is the longest prompt, in runes, a chain will carry.
const MaxPromptLength = 500

// Field names a piece of state carried between steps as a query parameter.
type Field string

const (
	FieldPrompt   Field = "prompt"
	FieldTier     Field = "tier"
	FieldImageURL Field = "url"
)

// State is everything a chain carries between steps. There is no server-side
// session; State travels in the next link's query string and is validated on
// every decode.
type State struct {
	Prompt   string `validate:"max=500"`
	Tier     Tier   `validate:"oneof=standard ultra"`
	ImageURL string `validate:"omitempty,imageurl"`
}

var stateValidator = newStateValidator()

func newStateValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("imageurl", func(fl validator.FieldLevel) bool {
		return validImageURL(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register imageurl validation: %v", err))
	}
	return v
}

// EncodeState appends the non-empty fields of s to path as query parameters.
func EncodeState(path string, s State) string {
	q := url.Values{}
	if s.Prompt != "" {
		q.Set(string(FieldPrompt), s.Prompt)
	}
	if s.Tier != "" {
		q.Set(string(FieldTier), string(s.Tier))
	}
	if s.ImageURL != "" {
		q.Set(string(FieldImageURL), s.ImageURL)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// DecodeState reads carried fields from q and validates them. An absent tier
// decodes as TierStandard. Unsubstituted href templates such as "{prompt}"
// count as absent.
func DecodeState(q url.Values) (State, error) {
	s := State{
		Prompt:   strings.TrimSpace(queryValue(q, FieldPrompt)),
		Tier:     Tier(strings.ToLower(queryValue(q, FieldTier))),
		ImageURL: queryValue(q, FieldImageURL),
	}
	if s.Tier == "" {
		s.Tier = TierStandard
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate checks every field of s.
func (s State) Validate() error {
	if !utf8.ValidString(s.Prompt) {
		return fmt.Errorf("%w: prompt is not valid UTF-8", ErrInvalidCarriedState)
	}

	err := stateValidator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCarriedState, err)
	}

	switch fe := verrs[0]; fe.Field() {
	case "Prompt":
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidCarriedState, MaxPromptLength)
	case "Tier":
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidCarriedState, fe.Value())
	case "ImageURL":
		return fmt.Errorf("%w: image url must be an absolute http, https or ipfs url", ErrInvalidCarriedState)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidCarriedState, fe.Error())
	}
}

// Require fails with ErrMissingRequiredInput for the first empty field.
func (s State) Require(fields ...Field) error {
	for _, f := range fields {
		var v string
		switch f {
		case FieldPrompt:
			v = s.Prompt
		case FieldTier:
			v = string(s.Tier)
		case FieldImageURL:
			v = s.ImageURL
		}
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrMissingRequiredInput, f)
		}
	}
	return nil
}

// ParseTier accepts the forms a checkbox may arrive in: a string, a list of
// selected values or a boolean. A missing value is the standard tier.
func ParseTier(v any) (Tier, bool) {
	switch t := v.(type) {
	case nil:
		return TierStandard, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case string(TierUltra), "true", "on":
			return TierUltra, true
		case string(TierStandard), "", "false":
			return TierStandard, true
		}
	case bool:
		if t {
			return TierUltra, true
		}
		return TierStandard, true
	case []any:
		for _, item := range t {
			if tier, ok := ParseTier(item); ok && tier == TierUltra {
				return TierUltra, true
			}
		}
		return TierStandard, true
	case []string:
		for _, item := range t {
			if tier, ok := ParseTier(item); ok && tier == TierUltra {
				return TierUltra, true
			}
		}
		return TierStandard, true
	}
	return "", false
}

func queryValue(q url.Values, f Field) string {
	v := q.Get(string(f))
	if isTemplate(v) {
		return ""
	}
	return v
}

// isTemplate reports an href placeholder the client did not substitute.
func isTemplate(v string) bool {
	return len(v) > 2 && strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}")
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ipfs":
		return true
	default:
		return false
	}
}
