package gitcache

import (
	"path/filepath"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCredentials(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.Reset()
	t.Cleanup(homedir.Reset)

	creds := DefaultCredentials(".")
	assert.Equal(t, DefaultUser, creds.User)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_rsa"), creds.KeyPath)
}

func TestAuthForNonSSHIsAnonymous(t *testing.T) {
	creds := Credentials{User: "git", KeyPath: filepath.Join(t.TempDir(), "absent")}
	for _, url := range []string{
		"https://github.com/org/repo.git",
		"file://localhost/srv/repo.git",
	} {
		auth, err := creds.authFor(url)
		require.NoError(t, err, url)
		assert.Nil(t, auth, url)
	}
}

func TestAuthForSSHMissingKey(t *testing.T) {
	creds := Credentials{User: "git", KeyPath: filepath.Join(t.TempDir(), "absent")}
	_, err := creds.authFor("git@github.com:org/repo.git")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = creds.authFor("ssh://deploy@github.com/org/repo.git")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
