// Package config loads the TOML-based configuration surface: the
// project-level ".digstore" descriptor (written by store.Init, read by
// store.Open) and the per-user "$HOME/.dig" files. Editing configuration
// is CLI scope; the only write here is WriteDescriptor's creation of a new
// ".digstore".
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/DIG-Network/digstore-sub000/digstoreerr"
)

// DigstoreDescriptor is the ".digstore" project marker.
type DigstoreDescriptor struct {
	Version   string `toml:"version"`
	StoreId   string `toml:"store_id"`
	Encrypted bool   `toml:"encrypted"`
}

const DescriptorFilename = ".digstore"

// ReadDescriptor loads projectPath/.digstore.
func ReadDescriptor(projectPath string) (*DigstoreDescriptor, error) {
	path := filepath.Join(projectPath, DescriptorFilename)
	var d DigstoreDescriptor
	if _, err := toml.DecodeFile(path, &d); err != nil {
		if os.IsNotExist(err) {
			return nil, digstoreerr.New(digstoreerr.StoreNotFound, "no .digstore descriptor in project path").WithPath(projectPath)
		}
		return nil, digstoreerr.Wrap(digstoreerr.ConfigurationError, err, "parsing .digstore").WithPath(path)
	}
	return &d, nil
}

// WriteDescriptor creates projectPath/.digstore, failing if it already
// exists (store.Init's StoreAlreadyExists contract).
func WriteDescriptor(projectPath string, d DigstoreDescriptor) error {
	path := filepath.Join(projectPath, DescriptorFilename)
	if _, err := os.Stat(path); err == nil {
		return digstoreerr.New(digstoreerr.StoreAlreadyExists, "a .digstore descriptor already exists").WithPath(path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "creating .digstore").WithPath(path)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(d); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing .digstore").WithPath(path)
	}
	return nil
}

// UserConfig is $HOME/.dig/config.toml. Only the three fields below are
// decoded; everything else in the file (CLI preferences, etc.) is ignored
// on decode. The store package does not read this file.
type UserConfig struct {
	User struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"user"`
	Crypto struct {
		PublicKey string `toml:"public_key"`
	} `toml:"crypto"`
}

// StoreConfig is "<store_id>.config.toml", e.g. a custom encryption key
// override.
type StoreConfig struct {
	CustomEncryptionKey string `toml:"custom_encryption_key"`
}

// UserRoot returns "$HOME/.dig" (or the platform equivalent, via
// os.UserHomeDir), the per-user storage root archives and staging live under.
func UserRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", digstoreerr.Wrap(digstoreerr.ConfigurationError, err, "resolving user home directory")
	}
	return filepath.Join(home, ".dig"), nil
}

// ReadUserConfig loads "<UserRoot>/config.toml". A missing file is not an
// error: it returns a zero-value UserConfig, since this config layer is
// entirely optional.
func ReadUserConfig() (*UserConfig, error) {
	root, err := UserRoot()
	if err != nil {
		return nil, err
	}
	var c UserConfig
	path := filepath.Join(root, "config.toml")
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if os.IsNotExist(err) {
			return &c, nil
		}
		return nil, digstoreerr.Wrap(digstoreerr.ConfigurationError, err, "parsing user config").WithPath(path)
	}
	return &c, nil
}

// ReadStoreConfig loads "<UserRoot>/<store_id>.config.toml". Also
// not-found-tolerant.
func ReadStoreConfig(storeIdHex string) (*StoreConfig, error) {
	root, err := UserRoot()
	if err != nil {
		return nil, err
	}
	var c StoreConfig
	path := filepath.Join(root, storeIdHex+".config.toml")
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if os.IsNotExist(err) {
			return &c, nil
		}
		return nil, digstoreerr.Wrap(digstoreerr.ConfigurationError, err, "parsing store config").WithPath(path)
	}
	return &c, nil
}

// ArchivePath returns "<UserRoot>/<store_id>.dig".
func ArchivePath(storeIdHex string) (string, error) {
	root, err := UserRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, storeIdHex+".dig"), nil
}

// StagingPath returns "<UserRoot>/<store_id>.staging.bin".
func StagingPath(storeIdHex string) (string, error) {
	root, err := UserRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, storeIdHex+".staging.bin"), nil
}
