package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/types"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// seedFile is the YAML layout accepted by SeedUsers:
//
//	users:
//	  - external_id: "123"
//	    display_name: alice
//	    whitelist:
//	      - steam_id: "76561198000000000"
//	        name: main
type seedFile struct {
	Users []types.UserRecord `yaml:"users"`
}

// SeedUsers validates every user in the YAML file at path, then creates those missing from
// the store and replaces the whitelist of those already present.
func SeedUsers(ctx context.Context, store ports.UserStore, path string, maxSlots int) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return types.Err(types.ErrInvalidConfig, err, "parse %s", path)
	}
	for _, u := range f.Users {
		if err := u.Validate(maxSlots); err != nil {
			return err
		}
	}
	for _, u := range f.Users {
		stored, err := store.CreateUser(ctx, u)
		if err != nil {
			return err
		}
		if len(stored.WhitelistEntries) != len(u.WhitelistEntries) || !sameEntries(stored.WhitelistEntries, u.WhitelistEntries) {
			if _, err := store.UpdateWhitelist(ctx, u.ExternalID, u.WhitelistEntries); err != nil {
				return err
			}
		}
		log.WithFields(log.Fields{
			"externalID": u.ExternalID,
			"entries":    len(u.WhitelistEntries),
		}).Info("user seeded")
	}
	return nil
}

// GetUser writes the stored record for externalID to w as indented JSON.
func GetUser(ctx context.Context, store ports.UserStore, externalID string, w io.Writer) error {
	u, err := store.FindUser(ctx, externalID)
	if err != nil {
		return err
	}
	if u == nil {
		return types.Err(types.ErrNotFound, nil, "user %s", externalID)
	}
	b, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func sameEntries(a, b []types.WhitelistEntry) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
