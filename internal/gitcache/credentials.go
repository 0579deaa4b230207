package gitcache

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	homedir "github.com/mitchellh/go-homedir"
)

// DefaultUser is the ssh user for URLs that do not name one.
const DefaultUser = "git"

// Credentials configures ssh public key authentication. No other
// authentication scheme is supported.
type Credentials struct {
	// User is used when the URL carries no user.
	User string
	// KeyPath is the private key file.
	KeyPath string
}

// DefaultCredentials uses ~/.ssh/id_rsa. When the home directory cannot be
// determined the key is looked up under fallbackBase instead.
func DefaultCredentials(fallbackBase string) Credentials {
	base, err := homedir.Dir()
	if err != nil || base == "" {
		base = fallbackBase
	}
	return Credentials{
		User:    DefaultUser,
		KeyPath: filepath.Join(base, ".ssh", "id_rsa"),
	}
}

// authFor returns the auth method for rawURL. Only ssh endpoints get one;
// every other transport is used anonymously.
func (c Credentials) authFor(rawURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsableURL, err)
	}
	if ep.Protocol != "ssh" {
		return nil, nil
	}

	user := ep.User
	if user == "" {
		user = c.User
	}
	if user == "" {
		user = DefaultUser
	}
	auth, err := gitssh.NewPublicKeysFromFile(user, c.KeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("%w: loading ssh key %s: %w", ErrAuthenticationFailed, c.KeyPath, err)
	}
	return auth, nil
}
