/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/reader"
)

// unpackCmd represents the unpack command
var unpackCmd = &cobra.Command{
	Use:     "unpack <input.pack> <output.jar>",
	Short:   "Unpack a packed stream into a jar",
	Example: "p200 unpack app.pack app.jar",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []reader.UnpackOption{reader.WithLogger(logger(cmd))}
		if cmd.Flags().Changed(config.DEFLATE_HINT) {
			s, _ := cmd.Flags().GetString(config.DEFLATE_HINT)
			hint, err := config.ParseDeflateHint(s)
			if err != nil {
				return errors.Wrap(format.ErrInvalidConfig, err.Error())
			}
			opts = append(opts, reader.WithDeflateHint(hint))
		}

		in, err := openInput(cmd, args[0])
		if err != nil {
			return err
		}
		defer in.Close()
		a, err := reader.NewUnpacker(opts...).Unpack(cmd.Context(), in)
		if err != nil {
			return err
		}
		buf := new(bytes.Buffer)
		if err := archive.WriteZip(buf, a); err != nil {
			return err
		}
		return writeOutput(cmd, args[1], buf.Bytes())
	},
}

func init() {
	rootCmd.AddCommand(unpackCmd)
	unpackCmd.Flags().StringP(config.DEFLATE_HINT, "H", "", "Override the stream's deflate hint: TRUE, FALSE or KEEP")
}
