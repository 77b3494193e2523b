package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// defaultDBPath mirrors the daemon's own default, scoped to orbit's own
// dotfile directory rather than the teacher's.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".orbit", "directory.db"), nil
}

func resolvedDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	return defaultDBPath()
}

// parseAddrBook parses a "node=host:port,..." string into the address book
// shape GrpcTransport expects.
func parseAddrBook(s string) (map[netid.NodeIdentity]string, error) {
	book := make(map[netid.NodeIdentity]string)
	if s == "" {
		return book, nil
	}

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid peer entry %q, want node=host:port", entry)
		}

		book[netid.NodeIdentity(parts[0])] = parts[1]
	}

	return book, nil
}

// netidIdentity returns the CLI's own ephemeral node identity.
func netidIdentity() netid.NodeIdentity {
	return netid.NodeIdentity(nodeIdentity)
}

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
