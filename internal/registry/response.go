// Package registry defines the registry lookup contract and normalizes
// heterogeneous registry responses into domain fragments.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that the registry has no record for the domain.
var ErrNotFound = errors.New("domain not found in registry")

// Field is a single key/value pair of a registry response.
type Field struct {
	Key   string
	Value string
}

// Response is an ordered registry response. Keys may repeat; order is the
// order the registry returned them in.
type Response []Field

// Get returns the value of the last field whose key equals key, ignoring case.
func (r Response) Get(key string) (string, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if strings.EqualFold(r[i].Key, key) {
			return r[i].Value, true
		}
	}
	return "", false
}

// Gateway performs registry lookups for a domain name.
type Gateway interface {
	Lookup(ctx context.Context, name string) (Response, error)
	LookupRaw(ctx context.Context, name string) (string, error)
}

// LookupError wraps any failure of a registry lookup: transport errors,
// timeouts, or ErrNotFound.
type LookupError struct {
	Domain string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.Domain, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
