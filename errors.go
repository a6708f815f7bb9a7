package objgraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeCardinality ErrorType = "cardinality"
	ErrorTypeDenyDelete  ErrorType = "deny_delete"
	ErrorTypeQuery       ErrorType = "query"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeInternal    ErrorType = "internal"
)

// Error codes
const (
	ErrCodeObjectNotFound        = "OBJECT_NOT_FOUND"
	ErrCodeTypeMismatch          = "TYPE_MISMATCH"
	ErrCodeUnknownAttribute      = "UNKNOWN_ATTRIBUTE"
	ErrCodeUnknownRelationship   = "UNKNOWN_RELATIONSHIP"
	ErrCodeRequiredFieldMissing  = "REQUIRED_FIELD_MISSING"
	ErrCodeMinCardinality        = "MIN_CARDINALITY_VIOLATED"
	ErrCodeMaxCardinality        = "MAX_CARDINALITY_EXCEEDED"
	ErrCodeDestinationMismatch   = "DESTINATION_MISMATCH"
	ErrCodeDeleteDenied          = "DELETE_DENIED"
	ErrCodeCascadeDepthExceeded  = "CASCADE_DEPTH_EXCEEDED"
	ErrCodeDerivationFailed      = "DERIVATION_FAILED"
	ErrCodeInvalidFilter         = "INVALID_FILTER"
	ErrCodeInvalidSort           = "INVALID_SORT"
	ErrCodeInvalidPage           = "INVALID_PAGE"
	ErrCodePersistFailed         = "PERSIST_FAILED"
	ErrCodeTransactionFailed     = "TRANSACTION_FAILED"
	ErrCodeCloudRequestFailed    = "CLOUD_REQUEST_FAILED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeContextCanceled       = "CONTEXT_CANCELED"
	ErrCodeInvalidConfiguration  = "INVALID_CONFIGURATION"
	ErrCodeInvalidModelDocument  = "INVALID_MODEL_DOCUMENT"
	ErrCodeUnknownDerivationFunc = "UNKNOWN_DERIVATION_FUNCTION"
)

// GraphError is the structured error returned by object store operations.
type GraphError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Object  *ObjectRef     `json:"object,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GraphError) Error() string {
	if e.Object != nil {
		if e.Field != "" {
			return fmt.Sprintf("[%s:%s] %s %s.%s: %s",
				e.Type, e.Code, e.Object.EntityName, e.Object.ID, e.Field, e.Message)
		}
		return fmt.Sprintf("[%s:%s] %s %s: %s",
			e.Type, e.Code, e.Object.EntityName, e.Object.ID, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *GraphError) WithDetails(details map[string]any) *GraphError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail
func (e *GraphError) WithDetail(key string, value any) *GraphError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *GraphError) WithCause(cause error) *GraphError {
	e.Cause = cause
	return e
}

func (e *GraphError) WithObject(id ObjectID, entity string) *GraphError {
	e.Object = &ObjectRef{ID: id, EntityName: entity}
	return e
}

func (e *GraphError) WithField(field string) *GraphError {
	e.Field = field
	return e
}

// NewGraphError creates a new GraphError
func NewGraphError(errorType ErrorType, code, message string) *GraphError {
	return &GraphError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewNotFoundError reports an identity that is unknown or already removed.
func NewNotFoundError(id ObjectID) *GraphError {
	return &GraphError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeObjectNotFound,
		Message: fmt.Sprintf("object %s not found", id),
		Details: map[string]any{"id": id.String()},
	}
}

// NewKindMismatchError reports a value whose kind does not match the attribute.
func NewKindMismatchError(field string, expected, actual ValueKind) *GraphError {
	return &GraphError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("expected %s value, got %s", expected, actual),
		Field:   field,
		Details: map[string]any{
			"expected": string(expected),
			"actual":   string(actual),
		},
	}
}

// NewValidationError creates a single-field validation error
func NewValidationError(code, field, message string) *GraphError {
	return &GraphError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewCardinalityError reports a relationship whose size would exceed its maximum.
func NewCardinalityError(relationship string, size, maxCount int) *GraphError {
	return &GraphError{
		Type:    ErrorTypeCardinality,
		Code:    ErrCodeMaxCardinality,
		Message: fmt.Sprintf("relationship would hold %d objects, maximum is %d", size, maxCount),
		Field:   relationship,
		Details: map[string]any{
			"size":      size,
			"max_count": maxCount,
		},
	}
}

// NewDenyDeleteError reports a delete blocked by a non-empty deny relationship.
func NewDenyDeleteError(relationship string, related int) *GraphError {
	return &GraphError{
		Type:    ErrorTypeDenyDelete,
		Code:    ErrCodeDeleteDenied,
		Message: fmt.Sprintf("delete denied: relationship still references %d object(s)", related),
		Field:   relationship,
		Details: map[string]any{"related_count": related},
	}
}

// NewQueryError creates a query error
func NewQueryError(code, message string) *GraphError {
	return &GraphError{
		Type:    ErrorTypeQuery,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewPersistenceError wraps a sink failure.
func NewPersistenceError(sink string, cause error) *GraphError {
	return &GraphError{
		Type:    ErrorTypePersistence,
		Code:    ErrCodePersistFailed,
		Message: fmt.Sprintf("sink %s failed to persist change set", sink),
		Details: map[string]any{"sink": sink},
		Cause:   cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *GraphError {
	return &GraphError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// ValidationIssue is one violated constraint found during commit.
type ValidationIssue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Object  ObjectID `json:"object"`
	Entity  string   `json:"entity"`
	Field   string   `json:"field,omitempty"`
}

func (e *ValidationIssue) Error() string {
	return fmt.Sprintf("[%s] %s %s: %s (field: %s)", e.Code, e.Entity, e.Object, e.Message, e.Field)
}

// ValidationErrors aggregates every constraint violated by a commit.
type ValidationErrors struct {
	Errors []*ValidationIssue `json:"errors"`
}

// Error lists every issue, one per line after the summary.
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "multiple validation errors: %d errors found", len(ve.Errors))
	for _, issue := range ve.Errors {
		b.WriteString("\n  ")
		b.WriteString(issue.Error())
	}
	return b.String()
}

func (ve *ValidationErrors) Add(issue *ValidationIssue) {
	ve.Errors = append(ve.Errors, issue)
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToError returns the ValidationErrors as an error if there are any errors, nil otherwise
func (ve *ValidationErrors) ToError() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Fields returns "Entity.field" for every issue, in report order.
func (ve *ValidationErrors) Fields() []string {
	out := make([]string, 0, len(ve.Errors))
	for _, issue := range ve.Errors {
		out = append(out, issue.Entity+"."+issue.Field)
	}
	return out
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]*ValidationIssue, 0),
	}
}

// SchemaErrorType represents the type of schema error
type SchemaErrorType string

const (
	SchemaErrorTypeNotFound          SchemaErrorType = "not_found"
	SchemaErrorTypeDuplicate         SchemaErrorType = "duplicate"
	SchemaErrorTypeInvalidInverse    SchemaErrorType = "invalid_inverse"
	SchemaErrorTypeDerivationCycle   SchemaErrorType = "derivation_cycle"
	SchemaErrorTypeInvalidDefinition SchemaErrorType = "invalid_definition"
	SchemaErrorTypeInvalidFormat     SchemaErrorType = "invalid_format"
)

// SchemaError represents schema-related errors
type SchemaError struct {
	Type    SchemaErrorType `json:"type"`
	Entity  string          `json:"entity,omitempty"`
	Message string          `json:"message"`
	Cause   error           `json:"-"`
}

func (e *SchemaError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("schema error [%s] %s: %s", e.Type, e.Entity, e.Message)
	}
	return fmt.Sprintf("schema error [%s]: %s", e.Type, e.Message)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(errorType SchemaErrorType, entity, message string, cause error) *SchemaError {
	return &SchemaError{
		Type:    errorType,
		Entity:  entity,
		Message: message,
		Cause:   cause,
	}
}

// IsSchemaError checks if an error is a SchemaError of a specific type
func IsSchemaError(err error, errorType SchemaErrorType) bool {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Type == errorType
	}
	return false
}

func isGraphErrorType(err error, t ErrorType) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Type == t
	}
	return false
}

// IsNotFoundError checks if an error reports an unknown identity
func IsNotFoundError(err error) bool {
	return isGraphErrorType(err, ErrorTypeNotFound)
}

// IsValidationError checks for a single-field validation error or a commit aggregate
func IsValidationError(err error) bool {
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	return isGraphErrorType(err, ErrorTypeValidation)
}

func IsCardinalityError(err error) bool {
	return isGraphErrorType(err, ErrorTypeCardinality)
}

func IsDenyDeleteError(err error) bool {
	return isGraphErrorType(err, ErrorTypeDenyDelete)
}

func IsQueryError(err error) bool {
	return isGraphErrorType(err, ErrorTypeQuery)
}

func IsPersistenceError(err error) bool {
	return isGraphErrorType(err, ErrorTypePersistence)
}
