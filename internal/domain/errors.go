// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrBudgetExceeded indicates the daily or monthly spend limit would be exceeded.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrRateLimited indicates the host API rejected a call with a rate-limit error.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrLockHeld indicates another request already holds the in-flight lock.
var ErrLockHeld = errors.New("lock held by another request")
