package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options configures one invocation. Validated up front; a violation is an
// invalid-input outcome before any stage runs.
type Options struct {
	// Entry is the entry script path.
	Entry string `validate:"required"`

	// ProjectRoot is the containment root for file-backed imports.
	ProjectRoot string `validate:"required,dir"`

	// AllowOutsideRoot relaxes the project-root containment invariant.
	// Default is containment enforced.
	AllowOutsideRoot bool

	// Timeout bounds script evaluation. Zero means the engine default.
	Timeout time.Duration `validate:"min=0"`
}

var validate = validator.New()

// Validate checks the options against their struct tags.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid pipeline options: %w", err)
	}
	return nil
}
