// Package creds stores the portal account in the OS keyring.
package creds

import (
	"errors"
	"fmt"
	"log"

	"github.com/zalando/go-keyring"

	"autoportal/internal/models"
)

const (
	// ServiceName identifies the keyring entries.
	ServiceName = "autoportal"

	usernameKey = "ldap_username"
	passwordKey = "ldap_password"
)

// ErrNotConfigured means no credentials have been stored yet.
var ErrNotConfigured = errors.New("credentials not configured")

// Store is the keyring-backed credential provider.
type Store struct{}

// NewStore returns the credential store.
func NewStore() *Store { return &Store{} }

// Set stores or replaces the credentials.
func (s *Store) Set(c models.Credentials) error {
	if err := keyring.Set(ServiceName, usernameKey, c.Username); err != nil {
		return fmt.Errorf("store username: %w", err)
	}
	if err := keyring.Set(ServiceName, passwordKey, c.Password); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	log.Printf("creds: credentials stored")
	return nil
}

// Get retrieves the stored credentials.
func (s *Store) Get() (models.Credentials, error) {
	username, err := keyring.Get(ServiceName, usernameKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return models.Credentials{}, ErrNotConfigured
		}
		return models.Credentials{}, fmt.Errorf("read username: %w", err)
	}
	password, err := keyring.Get(ServiceName, passwordKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return models.Credentials{}, ErrNotConfigured
		}
		return models.Credentials{}, fmt.Errorf("read password: %w", err)
	}
	return models.Credentials{Username: username, Password: password}, nil
}

// Clear removes the stored credentials. Missing entries are not an error.
func (s *Store) Clear() error {
	if err := keyring.Delete(ServiceName, usernameKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("clear username: %w", err)
	}
	if err := keyring.Delete(ServiceName, passwordKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("clear password: %w", err)
	}
	log.Printf("creds: credentials cleared")
	return nil
}
