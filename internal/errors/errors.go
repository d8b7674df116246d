package errors

import (
	"fmt"
	"time"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Credential store errors

type ErrUnknownAccount struct {
	Provider string
	Label    string
}

func (e *ErrUnknownAccount) Error() string {
	return fmt.Sprintf("unknown account %q for provider %s", e.Label, e.Provider)
}

type ErrCredentialStore struct {
	Path string
	Err  error
}

func (e *ErrCredentialStore) Error() string {
	return fmt.Sprintf("credential store %s: %v", e.Path, e.Err)
}

func (e *ErrCredentialStore) Unwrap() error {
	return e.Err
}

// Browser cookie extraction errors

type ErrBrowserNotFound struct {
	Browser string
}

func (e *ErrBrowserNotFound) Error() string {
	return fmt.Sprintf("browser %s not found or has no cookie store", e.Browser)
}

type ErrStoreLocked struct {
	Browser string
	Path    string
}

func (e *ErrStoreLocked) Error() string {
	return fmt.Sprintf("cookie store for %s is locked: %s", e.Browser, e.Path)
}

type ErrDecryptionFailed struct {
	Browser string
	Err     error
}

func (e *ErrDecryptionFailed) Error() string {
	return fmt.Sprintf("failed to decrypt %s cookies: %v", e.Browser, e.Err)
}

func (e *ErrDecryptionFailed) Unwrap() error {
	return e.Err
}

// Fetch execution errors

type ErrAlreadyRunning struct {
	Provider string
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("a probe for provider %s is already running", e.Provider)
}

type ErrUnsupportedSource struct {
	Provider string
	Source   string
}

func (e *ErrUnsupportedSource) Error() string {
	return fmt.Sprintf("provider %s does not support source %s", e.Provider, e.Source)
}

type ErrAuthRejected struct {
	Provider string
	Status   int
}

func (e *ErrAuthRejected) Error() string {
	return fmt.Sprintf("provider %s rejected credentials (status %d)", e.Provider, e.Status)
}

type ErrParse struct {
	Provider string
	Reason   string
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("unexpected %s response shape: %s", e.Provider, e.Reason)
}

type ErrAttemptTimeout struct {
	Provider string
	Elapsed  time.Duration
}

func (e *ErrAttemptTimeout) Error() string {
	return fmt.Sprintf("attempt for provider %s timed out after %s", e.Provider, e.Elapsed)
}
