package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrInvalidOptions is returned by Open and Options.Validate for option
// values out of range.
var ErrInvalidOptions = errors.New("engine: invalid options")

// Options configures how a book is opened and searched. Zero fields take the
// values in their default tags.
type Options struct {
	// MaxEntrySize bounds the decompressed size of any single archive entry.
	MaxEntrySize int64 `default:"268435456" json:"max_entry_size" validate:"min=0"`
	// SearchContext is the number of characters of context kept on each side
	// of a search hit.
	SearchContext int `default:"100" json:"search_context" validate:"min=0"`
	// SearchLimit caps the number of search results; 0 means no limit.
	SearchLimit int `json:"search_limit" validate:"min=0"`
	// ThumbnailWidth is the cover thumbnail width used when none is given.
	ThumbnailWidth int `default:"300" json:"thumbnail_width" validate:"min=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	_ = o.setDefaults()
	return o
}

// Validate reports the first field out of range, named by its json key.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return errors.Wrap(ErrInvalidOptions, formatValidationError(fieldErrs[0]))
	}
	return errors.WithStack(err)
}

func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "min":
		return fmt.Sprintf("%q must be greater than or equal to %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%q failed %s validation", err.Field(), err.Tag())
	}
}

func (o *Options) setDefaults() error {
	if err := defaults.Set(o); err != nil {
		return errors.WithStack(err)
	}
	return o.Validate()
}
