package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a tracked strategy
type Status string

const (
	StatusTesting   Status = "testing"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// ParseStatus converts a user-supplied string into a Status
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q (want testing|active|suspended)", s)
	}
	return st, nil
}

// Valid reports whether s is one of the three lifecycle states
func (s Status) Valid() bool {
	switch s {
	case StatusTesting, StatusActive, StatusSuspended:
		return true
	}
	return false
}

// Strategy is the identity record of a tracked strategy. ID, Name and Owner
// are fixed at registration; Status changes only through the registry.
type Strategy struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Owner  string `json:"owner,omitempty" yaml:"owner"` // participant the strategy is attributed to
	Status Status `json:"status" yaml:"status"`
}
