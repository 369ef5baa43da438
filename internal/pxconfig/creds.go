package pxconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tobischo/gokeepasslib/v3"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pxtool/px/internal/pxhome"
)

// keyringService namespaces px's entries in the OS keyring.
const keyringService = "px-index-credentials"

// vaultFileName is the headless/CI fallback vault, used when no OS
// keyring is available (containers, most CI runners).
const vaultFileName = "vault.kdbx"

// IndexCredential is a resolved username/password pair for one
// package index host.
type IndexCredential struct {
	Username string
	Password string
}

// StoreCredential saves a credential for host in the OS keyring.
func StoreCredential(host string, cred IndexCredential) error {
	return keyring.Set(keyringService, host, cred.Username+"\x00"+cred.Password)
}

// LookupCredential resolves a credential for host: the OS keyring is
// tried first; on keyring.ErrNotFound or keyring.ErrUnsupportedPlatform
// it falls back to the encrypted vault under
// ~/.px/credentials/vault.kdbx. Any other keyring error is returned.
func LookupCredential(host, vaultPassphrase string) (*IndexCredential, error) {
	secret, err := keyring.Get(keyringService, host)
	if err == nil {
		return splitCredential(secret)
	}
	if err != keyring.ErrNotFound && err != keyring.ErrUnsupportedPlatform {
		return nil, fmt.Errorf("reading OS keyring for %s: %w", host, err)
	}
	return lookupVaultCredential(host, vaultPassphrase)
}

func splitCredential(secret string) (*IndexCredential, error) {
	for i := 0; i < len(secret); i++ {
		if secret[i] == 0 {
			return &IndexCredential{Username: secret[:i], Password: secret[i+1:]}, nil
		}
	}
	return nil, fmt.Errorf("malformed stored credential")
}

func vaultPath() (string, error) {
	dir, err := pxhome.CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, vaultFileName), nil
}

// lookupVaultCredential opens the KeePass-format vault and returns the
// entry titled host, if present. The vault is the CI/headless fallback
// for hosts where `px` cannot reach a real OS keyring.
func lookupVaultCredential(host, passphrase string) (*IndexCredential, error) {
	path, err := vaultPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no credential for %s in OS keyring or fallback vault", host)
		}
		return nil, err
	}
	defer f.Close()

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(passphrase)
	if err := gokeepasslib.NewDecoder(f).Decode(db); err != nil {
		return nil, fmt.Errorf("decoding credential vault: %w", err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("unlocking credential vault: %w", err)
	}

	for _, group := range db.Content.Root.Groups {
		if cred := findEntryInGroup(group, host); cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("no entry %q in credential vault", host)
}

func findEntryInGroup(group gokeepasslib.Group, host string) *IndexCredential {
	for _, entry := range group.Entries {
		if entry.GetTitle() == host {
			return &IndexCredential{
				Username: entry.GetContent("UserName"),
				Password: entry.GetPassword(),
			}
		}
	}
	for _, sub := range group.Groups {
		if cred := findEntryInGroup(sub, host); cred != nil {
			return cred
		}
	}
	return nil
}

// OAuthConfig describes an OAuth2 client-credentials flow for a private
// index. LookupCredential never produces one; callers fill it in
// themselves.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// TokenSource builds an oauth2.TokenSource for an index requiring
// client-credentials auth.
func (c OAuthConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return cfg.TokenSource(ctx)
}
