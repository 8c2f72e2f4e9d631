package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
)

const maxQueryLength = 1000

type Validator struct {
	validator                *validator.Validate
	logger                   logger.Logger
	tagValidationDetailsOnce sync.Once
	tagValidationDetailsMap  map[string]tagValidationDetails
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	err           error
}

func New(logger logger.Logger) (*Validator, error) {
	validator := &Validator{validator: validator.New(), logger: logger}
	validator.validator.RegisterTagNameFunc(useJSONFieldNames)
	if err := validator.registerCustomValidatorsForTags(); err != nil {
		return nil, err
	}

	return validator, nil
}

func (v *Validator) Validate(i any) error {

	if err := v.validator.Struct(i); err != nil {
		v.logger.Warn("validation failed", "err", err.Error())
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {

			tagValidationDetails, ok := v.getTagValidationDetails()[validationErrs[0].Tag()]
			if ok {
				return tagValidationDetails.err
			}

			switch validationErrs[0].Tag() {
			case "required":
				return fmt.Errorf("missing required field '%s'", validationErrs[0].Field())

			case "min", "max":
				return fmt.Errorf("value or length of field '%s' is not in the expected range", validationErrs[0].Field())

			case "oneof":
				return fmt.Errorf("field '%s' is not one of the allowed values", validationErrs[0].Field())

			}
		}
		return err
	}
	return nil
}
func (v *Validator) getTagValidationDetails() map[string]tagValidationDetails {
	v.tagValidationDetailsOnce.Do(func() {
		v.tagValidationDetailsMap = map[string]tagValidationDetails{
			"valid_query":  {validatorFunc: v.isValidQuery, err: errors.New("invalid query")},
			"valid_sort":   {validatorFunc: v.isValidSort, err: errors.New("invalid sort")},
			"valid_fields": {validatorFunc: v.isValidFields, err: errors.New("invalid searchable fields")},
			"valid_index":  {validatorFunc: v.isValidIndex, err: errors.New("invalid index name")},
		}
	})
	return v.tagValidationDetailsMap
}

func (v *Validator) registerCustomValidatorsForTags() error {

	tagValidationDetailsMap := v.getTagValidationDetails()

	for tag, tagValidationDetails := range tagValidationDetailsMap {
		if err := v.validator.RegisterValidation(tag, tagValidationDetails.validatorFunc); err != nil {
			v.logger.Error("failed to register customer validator function", "err", err.Error())
			return err
		}
	}
	return nil
}

func useJSONFieldNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	}
	return name
}

// isValidQuery accepts the blank query: it is a real query that resolves to the initial state.
func (v *Validator) isValidQuery(fl validator.FieldLevel) bool {
	query := fl.Field().String()

	if strings.Contains(query, "\x00") {
		v.logger.Warn("query has null byte")
		return false
	}

	if utf8.RuneCountInString(query) > maxQueryLength {
		v.logger.Warn("query is too long", "length", utf8.RuneCountInString(query))
		return false
	}

	return true
}

func (v *Validator) isValidSort(fl validator.FieldLevel) bool {
	sort := fl.Field().String()
	if len(sort) == 0 {
		return true
	}

	return search.ValidSortKey(sort)
}

func (v *Validator) isValidFields(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}

	for i := 0; i < field.Len(); i++ {
		name := field.Index(i).String()
		if !search.ValidField(name) {
			v.logger.Warn("unknown searchable field", "field", name)
			return false
		}
	}
	return true
}

func (v *Validator) isValidIndex(fl validator.FieldLevel) bool {
	index := fl.Field().String()
	if strings.TrimSpace(index) == "" {
		v.logger.Warn("index name is empty")
		return false
	}

	if strings.ContainsAny(index, " \t\r\n/\\") {
		v.logger.Warn("index name has whitespace or slashes", "index", index)
		return false
	}

	return true
}
