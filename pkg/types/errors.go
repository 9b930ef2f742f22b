package types

import (
	"fmt"
	"strings"
)

// ValidationIssue is one violated constraint on one field
type ValidationIssue struct {
	Field   string
	Message string
	Code    string
}

// Issue codes emitted by the schema validator.
const (
	IssueRequired  = "required"
	IssueType      = "type"
	IssueEnum      = "enum"
	IssueMin       = "min"
	IssueMax       = "max"
	IssueMinLength = "minLength"
	IssueMaxLength = "maxLength"
	IssuePattern   = "pattern"
	IssueFormat    = "format"
)

// ValidationError carries every constraint failure found in one record
type ValidationError struct {
	Bucket string
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", issue.Field, issue.Message)
	}
	return fmt.Sprintf("validation failed for bucket %q: %s", e.Bucket, strings.Join(parts, "; "))
}

// UniqueConstraintError reports a duplicate value on a unique field
type UniqueConstraintError struct {
	Bucket string
	Field  string
	Value  any
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s.%s (value %v)", e.Bucket, e.Field, e.Value)
}

// BucketAlreadyExistsError reports a duplicate bucket registration
type BucketAlreadyExistsError struct {
	Bucket string
}

func (e *BucketAlreadyExistsError) Error() string {
	return fmt.Sprintf("bucket %q already defined", e.Bucket)
}

// BucketNotDefinedError reports access to an unregistered bucket
type BucketNotDefinedError struct {
	Bucket string
}

func (e *BucketNotDefinedError) Error() string {
	return fmt.Sprintf("bucket %q not defined", e.Bucket)
}

// QueryAlreadyDefinedError reports a duplicate query registration
type QueryAlreadyDefinedError struct {
	Query string
}

func (e *QueryAlreadyDefinedError) Error() string {
	return fmt.Sprintf("query %q already defined", e.Query)
}

// QueryNotDefinedError reports access to an unregistered query
type QueryNotDefinedError struct {
	Query string
}

func (e *QueryNotDefinedError) Error() string {
	return fmt.Sprintf("query %q not defined", e.Query)
}

// TransactionConflictError reports a commit-time validation failure: a
// stale version, a vanished record, a duplicate key, or a unique collision
type TransactionConflictError struct {
	Bucket string
	Key    string
	Field  string
}

func (e *TransactionConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("transaction conflict on %s[%s] (field %s)", e.Bucket, e.Key, e.Field)
	}
	return fmt.Sprintf("transaction conflict on %s[%s]", e.Bucket, e.Key)
}

// RecordNotFoundError reports an update against a missing key
type RecordNotFoundError struct {
	Bucket string
	Key    string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %q not found in bucket %q", e.Key, e.Bucket)
}
