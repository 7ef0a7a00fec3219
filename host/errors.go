// Package host defines the narrow view of a binary-analysis program that the
// class sorter reads from and writes to.
package host

import "errors"

// Sentinel errors returned by Program and Tx implementations.
var (
	// ErrTxDone indicates the transaction was already committed or rolled back.
	ErrTxDone = errors.New("host: transaction already finished")

	// ErrGroupNotFound indicates a group ID does not exist.
	ErrGroupNotFound = errors.New("host: group not found")

	// ErrFunctionNotFound indicates no function starts at the address.
	ErrFunctionNotFound = errors.New("host: function not found")

	// ErrDataVarNotFound indicates no data variable starts at the address.
	ErrDataVarNotFound = errors.New("host: data variable not found")

	// ErrEmptyName indicates a rename or group creation with an empty name.
	ErrEmptyName = errors.New("host: empty name")
)
