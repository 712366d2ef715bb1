package store

import (
	"fmt"

	"github.com/2026musik-code/autoscrip/internal/remote"
)

// Decrypter opens credential blobs sealed at provisioning time.
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

func (r *ServerRecord) Target() remote.Target {
	return remote.Target{Host: r.Host, Port: r.Port, User: r.Username}
}

// Credentials decrypts the single credential field matching AuthType.
func (r *ServerRecord) Credentials(d Decrypter) (remote.Credentials, error) {
	switch r.AuthType {
	case AuthPrivateKey:
		key, err := d.Decrypt(r.EncryptedPrivateKey)
		if err != nil {
			return remote.Credentials{}, fmt.Errorf("server %s: %w", r.ID, err)
		}
		return remote.Credentials{PrivateKey: key}, nil
	case AuthPassword, "":
		pass, err := d.Decrypt(r.EncryptedPassword)
		if err != nil {
			return remote.Credentials{}, fmt.Errorf("server %s: %w", r.ID, err)
		}
		return remote.Credentials{Password: pass}, nil
	default:
		return remote.Credentials{}, fmt.Errorf("server %s: unknown auth type %q", r.ID, r.AuthType)
	}
}
