package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// directoryCmd groups read-only operations against the directory's backing
// SQLite database. It opens the database file directly rather than going
// through a running Stage, since directory placements are meant to be
// inspectable offline — the directory is an external collaborator, not
// Stage-internal state.
var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Inspect the addressable placement directory",
}

var directoryGetCmd = &cobra.Command{
	Use:   "get <interface> <key>",
	Short: "Look up where an addressable is currently placed",
	Args:  cobra.ExactArgs(2),
	RunE:  runDirectoryGet,
}

func init() {
	directoryCmd.AddCommand(directoryGetCmd)
}

func openDirectoryBackend() (*directory.SqliteBackend, error) {
	path, err := resolvedDBPath()
	if err != nil {
		return nil, err
	}

	return directory.NewSqliteBackend(directory.SqliteConfig{
		DatabaseFileName: path,
	})
}

type directoryEntry struct {
	Reference string `json:"reference"`
	Target    string `json:"target"`
	Found     bool   `json:"found"`
}

func runDirectoryGet(cmd *cobra.Command, args []string) error {
	backend, err := openDirectoryBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	ref := netid.AddressableReference{InterfaceID: args[0], Key: args[1]}

	target, found, err := backend.Get(context.Background(), ref)
	if err != nil {
		return fmt.Errorf("directory get %s: %w", ref, err)
	}

	entry := directoryEntry{Reference: ref.String(), Found: found}
	if found {
		entry.Target = target.String()
	}

	if outputFormat == "json" {
		return outputJSON(entry)
	}

	if !found {
		fmt.Printf("%s: no placement\n", ref)
		return nil
	}

	fmt.Printf("%s -> %s\n", ref, target)
	return nil
}
