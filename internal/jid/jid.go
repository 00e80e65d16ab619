// Package jid parses network addresses of the form local@domain/resource and
// derives the user identifiers the storage layer keys on.
package jid

import (
	"fmt"
	"strings"

	"github.com/and161185/msgstore/internal/errs"
)

// JID is a parsed network address.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// Parse splits an address into its parts. The domain is lower-cased; local
// part and resource are kept verbatim.
func Parse(s string) (JID, error) {
	var j JID
	rest := s
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		j.Resource = rest[i+1:]
		rest = rest[:i]
		if j.Resource == "" {
			return JID{}, fmt.Errorf("%q: empty resource: %w", s, errs.ErrInvalidAddress)
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		j.Local = rest[:i]
		rest = rest[i+1:]
		if j.Local == "" {
			return JID{}, fmt.Errorf("%q: empty local part: %w", s, errs.ErrInvalidAddress)
		}
	}
	j.Domain = strings.ToLower(rest)
	if j.Domain == "" {
		return JID{}, fmt.Errorf("%q: empty domain: %w", s, errs.ErrInvalidAddress)
	}
	return j, nil
}

// Bare returns the address without the resource.
func (j JID) Bare() string {
	if j.Local == "" {
		return j.Domain
	}
	return j.Local + "@" + j.Domain
}

// Full returns the resource-qualified address, or Bare when there is no resource.
func (j JID) Full() string {
	if j.Resource == "" {
		return j.Bare()
	}
	return j.Bare() + "/" + j.Resource
}

func (j JID) String() string { return j.Full() }

// UserID returns the canonical user identifier for an address: the address
// with any resource suffix removed.
func UserID(addr string) (string, error) {
	j, err := Parse(addr)
	if err != nil {
		return "", err
	}
	return j.Bare(), nil
}

// Qualify joins a user identifier and a resource into a resource-qualified identity.
func Qualify(userID, resource string) string {
	if resource == "" {
		return userID
	}
	return userID + "/" + resource
}
