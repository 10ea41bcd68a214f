package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const (
	signatureExtensionConstant         = ".asc"
	signatureFilePermissionsConstant   = 0o644
	readKeyErrorTemplateConstant       = "unable to read signing key %s: %w"
	decryptKeyErrorTemplateConstant    = "unable to decrypt signing key %s: %w"
	signErrorTemplateConstant          = "unable to sign %s: %w"
	missingPrivateKeyTemplateConstant  = "%w: %s"
	passphraseRequiredTemplateConstant = "%w: %s"
)

var (
	// ErrSigningKeyMissing indicates that a key file holds no private key.
	ErrSigningKeyMissing = errors.New("no private key found")
	// ErrSigningPassphraseRequired indicates an encrypted key without a passphrase.
	ErrSigningPassphraseRequired = errors.New("signing key is encrypted and no passphrase was given")
	// ErrSignerEntityRequired indicates a signer constructed without an entity.
	ErrSignerEntityRequired = errors.New("signing entity required")
)

// Signer writes ASCII armored detached OpenPGP signatures next to files.
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner wraps an entity holding a decrypted private key.
func NewSigner(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, ErrSignerEntityRequired
	}
	return &Signer{entity: entity}, nil
}

// LoadSigner reads the first private key from an armored or binary key file and decrypts it with passphrase.
func LoadSigner(keyPath string, passphrase string) (*Signer, error) {
	keyFile, openError := os.Open(keyPath)
	if openError != nil {
		return nil, fmt.Errorf(readKeyErrorTemplateConstant, keyPath, openError)
	}
	defer keyFile.Close()

	entities, readError := openpgp.ReadArmoredKeyRing(keyFile)
	if readError != nil {
		if _, seekError := keyFile.Seek(0, 0); seekError != nil {
			return nil, fmt.Errorf(readKeyErrorTemplateConstant, keyPath, seekError)
		}
		entities, readError = openpgp.ReadKeyRing(keyFile)
		if readError != nil {
			return nil, fmt.Errorf(readKeyErrorTemplateConstant, keyPath, readError)
		}
	}

	for _, entity := range entities {
		if entity.PrivateKey == nil {
			continue
		}
		if decryptError := decryptEntity(entity, passphrase); decryptError != nil {
			if errors.Is(decryptError, ErrSigningPassphraseRequired) {
				return nil, fmt.Errorf(passphraseRequiredTemplateConstant, ErrSigningPassphraseRequired, keyPath)
			}
			return nil, fmt.Errorf(decryptKeyErrorTemplateConstant, keyPath, decryptError)
		}
		return &Signer{entity: entity}, nil
	}

	return nil, fmt.Errorf(missingPrivateKeyTemplateConstant, ErrSigningKeyMissing, keyPath)
}

// Sign writes the signature of filePath to filePath.asc and returns the signature path.
func (signer *Signer) Sign(executionContext context.Context, filePath string) (string, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return "", contextError
	}

	message, openError := os.Open(filePath)
	if openError != nil {
		return "", fmt.Errorf(signErrorTemplateConstant, filePath, openError)
	}
	defer message.Close()

	signaturePath := filePath + signatureExtensionConstant
	signatureFile, createError := os.OpenFile(signaturePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, signatureFilePermissionsConstant)
	if createError != nil {
		return "", fmt.Errorf(signErrorTemplateConstant, filePath, createError)
	}

	signError := openpgp.ArmoredDetachSign(signatureFile, signer.entity, message, nil)
	closeError := signatureFile.Close()
	if signError == nil {
		signError = closeError
	}
	if signError != nil {
		os.Remove(signaturePath)
		return "", fmt.Errorf(signErrorTemplateConstant, filePath, signError)
	}
	return signaturePath, nil
}

func decryptEntity(entity *openpgp.Entity, passphrase string) error {
	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return ErrSigningPassphraseRequired
		}
		if decryptError := entity.PrivateKey.Decrypt([]byte(passphrase)); decryptError != nil {
			return decryptError
		}
	}
	for _, subkey := range entity.Subkeys {
		if subkey.PrivateKey == nil || !subkey.PrivateKey.Encrypted {
			continue
		}
		if len(passphrase) == 0 {
			return ErrSigningPassphraseRequired
		}
		if decryptError := subkey.PrivateKey.Decrypt([]byte(passphrase)); decryptError != nil {
			return decryptError
		}
	}
	return nil
}
