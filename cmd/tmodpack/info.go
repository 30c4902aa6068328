package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive.tmod>",
	Short: "Show archive header and build information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := tmod.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := os.Stat(args[0])
		if err != nil {
			return err
		}

		var size, stored int64
		for _, e := range a.Entries() {
			size += int64(e.UncompressedLength)
			stored += int64(e.CompressedLength)
		}

		hash := a.Hash()
		fmt.Printf("Name: %s\n", a.Name())
		fmt.Printf("Version: %s\n", a.Version())
		fmt.Printf("Format version: %s\n", a.FormatVersion())
		fmt.Printf("Legacy layout: %t\n", a.Legacy())
		fmt.Printf("Hash: %s\n", hex.EncodeToString(hash[:]))
		fmt.Printf("File size: %s\n", utils.Bytes(st.Size()))
		fmt.Printf("Entries: %s (%s, %s stored)\n", utils.Number(int64(a.Len())), utils.Bytes(size), utils.Ratio(stored, size))

		data, err := a.GetFile(tmod.InfoEntry)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("Build info: none")
			return nil
		}
		if err != nil {
			return err
		}
		meta, err := buildinfo.Decode(data)
		if err != nil {
			return fmt.Errorf("decoding build info: %w", err)
		}

		fmt.Println("Build info:")
		for _, line := range strings.Split(strings.TrimSpace(meta.FormatManifest()), "\n") {
			fmt.Printf("  %s\n", line)
		}
		if meta.Description != "" {
			fmt.Printf("  description: %s\n", firstLine(meta.Description))
		}
		return nil
	},
}

func firstLine(s string) string {
	line, rest, _ := strings.Cut(s, "\n")
	if rest != "" {
		return line + " ..."
	}
	return line
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
