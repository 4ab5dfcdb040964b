/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/reader"
	"github.com/indrora/pack200/pack200/writer"
)

// repackCmd represents the repack command
var repackCmd = &cobra.Command{
	Use:   "repack <output.jar> [<input.jar>]",
	Short: "Normalize a jar by packing and unpacking it",
	Long: `Pack a jar and unpack the result again. The output jar holds the
class files exactly as an unpacker will produce them, which is what a
signature must be computed over. Without an input jar the output jar is
repacked in place.`,
	Example: "p200 repack app-normalized.jar app.jar",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := packConfig(cmd)
		if err != nil {
			return err
		}
		input := args[0]
		if len(args) == 2 {
			input = args[1]
		}
		a, err := readJar(cmd, input)
		if err != nil {
			return err
		}
		stream := new(bytes.Buffer)
		if _, err := writer.NewPacker(cfg).Pack(cmd.Context(), a, stream); err != nil {
			return err
		}
		out, err := reader.NewUnpacker(reader.WithLogger(cfg.Logger)).Unpack(cmd.Context(), stream)
		if err != nil {
			return err
		}
		buf := new(bytes.Buffer)
		if err := archive.WriteZip(buf, out); err != nil {
			return err
		}
		return writeOutput(cmd, args[0], buf.Bytes())
	},
}

func init() {
	rootCmd.AddCommand(repackCmd)
	packFlags(repackCmd.Flags())
}
