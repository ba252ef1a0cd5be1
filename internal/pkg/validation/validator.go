package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Table keys may not contain these characters.
const forbiddenKeyChars = "/\\#?"

var propertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// StructValidator is shared by every handler. It knows the table key and
// projection rules in addition to the stock tags.
var StructValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("tablekey", validateTableKey)
	v.RegisterValidation("fieldlist", validateFieldList)
	return v
}

// validateTableKey rejects partition or row keys the store would refuse.
func validateTableKey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if strings.ContainsAny(key, forbiddenKeyChars) {
		return false
	}
	for _, r := range key {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return false
		}
	}
	return true
}

// validateFieldList accepts a comma separated list of property names.
func validateFieldList(fl validator.FieldLevel) bool {
	for _, name := range strings.Split(fl.Field().String(), ",") {
		if !propertyName.MatchString(strings.TrimSpace(name)) {
			return false
		}
	}
	return true
}

// ErrorResponse describes one failed field.
type ErrorResponse struct {
	FailedField string `json:"failed_field"`
	Tag         string `json:"tag"`
	Value       string `json:"value"`
	Message     string `json:"message"`
}

// ValidateStruct returns one ErrorResponse per failed field, or nil.
func ValidateStruct(payload interface{}) []*ErrorResponse {
	err := StructValidator.Struct(payload)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*ErrorResponse{{Tag: "invalid", Message: err.Error()}}
	}
	out := make([]*ErrorResponse, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, &ErrorResponse{
			FailedField: fe.StructNamespace(),
			Tag:         fe.Tag(),
			Value:       fmt.Sprintf("%v", fe.Value()),
			Message:     messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	sized := false
	switch fe.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		sized = true
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "min":
		if sized {
			return fmt.Sprintf("The %s field must have at least %s characters.", field, param)
		}
		return fmt.Sprintf("The %s field must be at least %s.", field, param)
	case "max":
		if sized {
			return fmt.Sprintf("The %s field must have at most %s characters.", field, param)
		}
		return fmt.Sprintf("The %s field must be at most %s.", field, param)
	case "datetime":
		return fmt.Sprintf("The %s field must be a timestamp in the format %s.", field, param)
	case "printascii":
		return fmt.Sprintf("The %s field may only contain printable ASCII characters.", field)
	case "tablekey":
		return fmt.Sprintf("The %s field may not contain control characters or any of %q.", field, forbiddenKeyChars)
	case "fieldlist":
		return fmt.Sprintf("The %s field must be a comma separated list of property names.", field)
	default:
		return fmt.Sprintf("The %s field is not valid (tag: %s).", field, fe.Tag())
	}
}

// ParseQueryAndValidate binds query parameters into payload and validates it.
// On false the 400 response has already been written.
func ParseQueryAndValidate(c *fiber.Ctx, payload interface{}) bool {
	if err := c.QueryParser(payload); err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return false
	}
	return respondValidation(c, payload)
}

// ParseAndValidate binds the request body into payload and validates it.
// On false the 400 response has already been written.
func ParseAndValidate(c *fiber.Ctx, payload interface{}) bool {
	if err := c.BodyParser(payload); err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return respondValidation(c, payload)
}

func respondValidation(c *fiber.Ctx, payload interface{}) bool {
	failed := ValidateStruct(payload)
	if failed == nil {
		return true
	}
	messages := make([]string, len(failed))
	for i, fe := range failed {
		messages[i] = fe.Message
	}
	c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":    "Validation failed",
		"details":  failed,
		"messages": messages,
	})
	return false
}
