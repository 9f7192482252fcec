package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
	"github.com/illarion/cipherstore/internal/transport"
)

// GetPasswordForInit retrieves the passphrase for a sealed init.
// Checks the environment first, then prompts with confirmation.
func GetPasswordForInit() ([]byte, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, nil
	}
	return core.ReadPasswordConfirm()
}

// GetPasswordWithRetry opens a sealed store trying, in order, the
// environment, the OS keyring and an interactive prompt. A keyring entry
// that no longer matches falls through to the prompt.
func GetPasswordWithRetry(path string, useKeyring bool) (*core.Store, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		defer crypto.ClearBytes(password)
		return core.Open(path, password)
	}

	if useKeyring {
		if storeID, err := core.StoreID(path); err == nil {
			if saved, err := keyring.GetPassword(storeID); err == nil {
				store, err := core.Open(path, []byte(saved))
				if err == nil {
					return store, nil
				}
				if !errors.Is(err, core.ErrWrongPassword) {
					return nil, err
				}
				slog.Warn("keyring password is stale, prompting", "store_id", storeID)
			}
		}
	}

	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password)
	return core.Open(path, password)
}

// openStore opens the local store, asking for a passphrase only if it is sealed
func (o *Options) openStore() (*core.Store, error) {
	store, err := core.Open(o.cfg.Database, nil)
	if errors.Is(err, core.ErrPasswordRequired) {
		return GetPasswordWithRetry(o.cfg.Database, o.cfg.UseKeyring)
	}
	return store, err
}

// service returns the record service the command should talk to: a remote
// server when one is configured, the local store otherwise. id may be nil
// for read-only use.
func (o *Options) service(id *crypto.Identity) (core.RecordService, io.Closer, error) {
	if o.cfg.Remote != "" {
		return transport.NewClient(o.cfg.Remote, id), io.NopCloser(nil), nil
	}
	store, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

func (o *Options) loadIdentity() (*crypto.Identity, error) {
	id, err := crypto.LoadIdentity(o.cfg.Identity)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no identity at %s, run 'cipherstore keygen' first", o.cfg.Identity)
	}
	return id, err
}

// HandleError prints err with a hint for the common cases
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: store not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'cipherstore init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: store already exists\n")
	case errors.Is(err, core.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, core.ErrNoRecord):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'cipherstore store' to write a record before rotating its key\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
