package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "wattson"
	keyringAPIKey  = "api-token"
)

// KeyringService stores the backend credential in the OS keychain. The token
// never touches the database or the config files.
type KeyringService interface {
	SetAPIToken(token string) error
	GetAPIToken() (string, error)
	DeleteAPIToken() error
	HasAPIToken() bool
}

type keyringServiceImpl struct{}

func NewKeyringService() KeyringService {
	return &keyringServiceImpl{}
}

func (k *keyringServiceImpl) SetAPIToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("ERR_TOKEN_EMPTY: token must not be empty")
	}
	return keyring.Set(keyringService, keyringAPIKey, token)
}

func (k *keyringServiceImpl) GetAPIToken() (string, error) {
	token, err := keyring.Get(keyringService, keyringAPIKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("ERR_AUTH_REQUIRED: no stored credential")
		}
		return "", err
	}
	return token, nil
}

func (k *keyringServiceImpl) DeleteAPIToken() error {
	err := keyring.Delete(keyringService, keyringAPIKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (k *keyringServiceImpl) HasAPIToken() bool {
	_, err := keyring.Get(keyringService, keyringAPIKey)
	return err == nil
}
