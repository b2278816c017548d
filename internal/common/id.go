package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID.
func NewDocumentID() string {
	return uuid.New().String()
}

// NewClientID generates a unique client ID.
func NewClientID() string {
	return uuid.New().String()
}

// NewSourceID generates a unique source ID.
func NewSourceID() string {
	return uuid.New().String()
}

// NewGroupID generates a unique group ID.
func NewGroupID() string {
	return uuid.New().String()
}

// NewTokenID generates a unique token ID.
func NewTokenID() string {
	return uuid.New().String()
}
