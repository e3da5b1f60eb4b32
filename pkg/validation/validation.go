// Package validation checks parsed upload rows before they are sanitized and staged
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/csvparse"
	"github.com/Ramsey-B/fern/pkg/models"
)

// rowInput mirrors the columns the validator cares about
type rowInput struct {
	NodeName     string `csv:"node_name" validate:"required"`
	EntityName   string `csv:"entity_name" validate:"required"`
	Website      string `csv:"website" validate:"required"`
	NodeCategory string `csv:"node_category" validate:"node_category"`
	Direction    string `csv:"direction" validate:"direction"`
}

// Validator applies the row rules. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("csv"), ",", 2)[0]
		if name == "" {
			return field.Name
		}
		return name
	})

	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("node_category", func(fl validator.FieldLevel) bool {
		return models.NodeCategory(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("direction", func(fl validator.FieldLevel) bool {
		return models.Direction(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v}
}

// ValidateRow returns every violation on row. An empty result means the row may be staged.
func (v *Validator) ValidateRow(row csvparse.Row) []models.RowValidationError {
	input := rowInput{
		NodeName:     row.Get(csvparse.ColumnNodeName),
		EntityName:   row.Get(csvparse.ColumnEntityName),
		Website:      row.Get(csvparse.ColumnWebsite),
		NodeCategory: row.Get(csvparse.ColumnNodeCategory),
		Direction:    row.Get(csvparse.ColumnDirection),
	}

	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []models.RowValidationError{{Row: row.Line, Message: err.Error()}}
	}

	violations := make([]models.RowValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		value := fmt.Sprint(fe.Value())
		violations = append(violations, models.RowValidationError{
			Row:     row.Line,
			Field:   fe.Field(),
			Message: message(fe.Field(), fe.Tag(), value),
			Value:   value,
		})
	}
	return violations
}

// ValidateRows splits rows into valid ones and the violations of the rest
func (v *Validator) ValidateRows(rows []csvparse.Row) ([]csvparse.Row, []models.RowValidationError) {
	valid := make([]csvparse.Row, 0, len(rows))
	violations := make([]models.RowValidationError, 0)

	for _, row := range rows {
		rowErrs := v.ValidateRow(row)
		if len(rowErrs) > 0 {
			violations = append(violations, rowErrs...)
			continue
		}
		valid = append(valid, row)
	}

	return valid, violations
}

func message(field, tag, value string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "node_category":
		return fmt.Sprintf("invalid node category %q", value)
	case "direction":
		return fmt.Sprintf("invalid direction %q", value)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
