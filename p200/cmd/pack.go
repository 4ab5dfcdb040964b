/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/indrora/pack200/pack200/writer"
)

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack <output.pack> <input.jar>",
	Short: "Pack a jar into a packed stream",
	Long: `Pack a jar into a packed stream.

Use "-" to write the stream to stdout or read the jar from stdin.`,
	Example: "p200 pack --effort 9 --compression brotli app.pack app.jar",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := packConfig(cmd)
		if err != nil {
			return err
		}
		a, err := readJar(cmd, args[1])
		if err != nil {
			return err
		}
		buf := new(bytes.Buffer)
		stats, err := writer.NewPacker(cfg).Pack(cmd.Context(), a, buf)
		if err != nil {
			return err
		}
		cfg.Logger.Info("packed",
			"version", stats.Version.String(),
			"segments", stats.Segments,
			"files", stats.Entries,
			"classes", stats.Classes,
			"raw-classes", stats.RawClasses,
			"in", stats.InputBytes,
			"out", stats.OutputBytes,
			"digest", stats.Digest.String())
		return writeOutput(cmd, args[0], buf.Bytes())
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
	packFlags(packCmd.Flags())
}
