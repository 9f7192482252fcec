package keyring

import (
	"github.com/zalando/go-keyring"
)

const serviceName = "cipherstore"

// SavePassword stores a store passphrase in the OS keyring
func SavePassword(storeID string, password string) error {
	return keyring.Set(serviceName, storeID, password)
}

// GetPassword retrieves a store passphrase from the OS keyring
func GetPassword(storeID string) (string, error) {
	return keyring.Get(serviceName, storeID)
}

// DeletePassword removes a store passphrase from the OS keyring
func DeletePassword(storeID string) error {
	return keyring.Delete(serviceName, storeID)
}

// HasPassword checks if a passphrase is stored in the keyring
func HasPassword(storeID string) bool {
	_, err := keyring.Get(serviceName, storeID)
	return err == nil
}
