package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:   "ls <archive.tmod> [pattern]",
	Short: "List archive entries",
	Long: `Ls prints the entry table of an archive in table order. An optional
pattern filters entries with path.Match syntax.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := tmod.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		pattern := ""
		if len(args) == 2 {
			pattern = args[1]
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
		}

		fmt.Printf("%-12s %-12s %-7s %s\n", "Size", "Stored", "Ratio", "Path")
		fmt.Println(strings.Repeat("-", 60))

		var count int
		var size, stored int64
		for _, e := range a.Entries() {
			if pattern != "" {
				if ok, _ := path.Match(pattern, e.Path); !ok {
					continue
				}
			}
			count++
			size += int64(e.UncompressedLength)
			stored += int64(e.CompressedLength)

			ratio := "-"
			if e.Compressed() {
				ratio = utils.Ratio(int64(e.CompressedLength), int64(e.UncompressedLength))
			}
			fmt.Printf("%-12s %-12s %-7s %s\n",
				utils.Bytes(int64(e.UncompressedLength)),
				utils.Bytes(int64(e.CompressedLength)),
				ratio,
				e.Path)
		}

		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-12s %-12s %-7s %s entries\n", utils.Bytes(size), utils.Bytes(stored), utils.Ratio(stored, size), utils.Number(int64(count)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
