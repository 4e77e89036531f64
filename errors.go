package main

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure category.
type ErrorCode string

const (
	ErrCodeConfigNotFound ErrorCode = "config_not_found"
	ErrCodeEncryption     ErrorCode = "encryption_failure"
	ErrCodeConnection     ErrorCode = "connection_failure"
	ErrCodeMapping        ErrorCode = "mapping_file_failure"
	ErrCodeExport         ErrorCode = "export_failure"
	ErrCodeDDL            ErrorCode = "ddl_generation_failure"
)

// CodedError carries a failure category, a human-readable message and an
// optional wrapped cause for diagnostic chaining.
type CodedError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Is matches two CodedErrors by code, so callers can test categories with
// errors.Is(err, &CodedError{Code: ErrCodeConnection}).
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newCodedError(code ErrorCode, msg string, cause error) *CodedError {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

func connectionError(msg string, cause error) *CodedError {
	return newCodedError(ErrCodeConnection, msg, cause)
}

func encryptionError(msg string, cause error) *CodedError {
	return newCodedError(ErrCodeEncryption, msg, cause)
}

func mappingError(msg string, cause error) *CodedError {
	return newCodedError(ErrCodeMapping, msg, cause)
}

func exportError(msg string, cause error) *CodedError {
	return newCodedError(ErrCodeExport, msg, cause)
}

func ddlError(msg string, cause error) *CodedError {
	return newCodedError(ErrCodeDDL, msg, cause)
}

// errorCode extracts the category from an error chain, or "" if the chain
// carries no CodedError.
func errorCode(err error) ErrorCode {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
