package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dmitrijs2005/arcticchat/internal/cryptox"
	"github.com/dmitrijs2005/arcticchat/internal/filex"
)

// loadOrCreateIdentity reads the age identity at path, generating and
// storing a new one on first run.
func loadOrCreateIdentity(path string) (identity string, created bool, err error) {
	data, err := os.ReadFile(path)
	if err == nil {
		identity = strings.TrimSpace(string(data))
		if _, err := cryptox.RecipientOf(identity); err != nil {
			return "", false, fmt.Errorf("identity file %s: %w", path, err)
		}
		return identity, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}

	identity, _, err = cryptox.GenerateIdentity()
	if err != nil {
		return "", false, err
	}
	if err := filex.WriteSecret(path, []byte(identity+"\n")); err != nil {
		return "", false, err
	}
	return identity, true, nil
}
