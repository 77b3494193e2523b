package commands

import (
	"fmt"

	"github.com/roasbeef/subtrate/internal/obuild"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit hash, and build metadata for orbitctl.`,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("orbitctl version %s", obuild.Version())

	if obuild.Commit != "" {
		fmt.Printf(" commit=%s", obuild.Commit)
	} else if obuild.CommitHash != "" {
		fmt.Printf(" commit=%s", obuild.CommitHash)
	}

	if obuild.GoVersion != "" {
		fmt.Printf(" go=%s", obuild.GoVersion)
	}

	if tags := obuild.Tags(); len(tags) > 0 {
		fmt.Printf(" tags=%s", obuild.RawTags)
	}

	fmt.Println()
}
