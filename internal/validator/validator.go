package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var (
	trans ut.Translator
	once  sync.Once
)

// storageIDPattern keeps ids free of the underscore that separates the parts
// of a storage key such as quiz_<quizId>_<courseId>_state.
var storageIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// Setup registers the validator with English translations on Gin's binding engine.
// Safe to call more than once.
func Setup() {
	once.Do(func() {
		if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
			register(v)
		}
	})
}

func register(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("storage_id", func(fl govalidator.FieldLevel) bool {
		return storageIDPattern.MatchString(fl.Field().String())
	})

	// Register English translations.
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	_ = v.RegisterTranslation("storage_id", trans,
		func(ut ut.Translator) error {
			return ut.Add("storage_id", "{0} may only contain letters, digits and dashes", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			msg, _ := ut.T("storage_id", fe.Field())
			return msg
		},
	)
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Params validates path parameters against tag, keyed by parameter name.
func Params(c *gin.Context, tag string, names ...string) map[string]string {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return nil
	}
	fields := make(map[string]string)
	for _, name := range names {
		if err := v.Var(c.Param(name), tag); err != nil {
			var ve govalidator.ValidationErrors
			if errors.As(err, &ve) && len(ve) > 0 {
				// Var errors carry no field name; the translation starts with a blank.
				fields[name] = name + " " + strings.TrimSpace(ve[0].Translate(trans))
				continue
			}
			fields[name] = err.Error()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
