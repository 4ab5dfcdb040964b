/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/reader"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pack>...",
	Short: "Investigate the contents of a packed stream",
	Long: `Investigate and show the structure of a packed stream,
including segment headers, compression and the files each segment holds.
Segment headers are dumped in full.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, filename := range args {
			fmt.Fprintln(out, filename)
			if err := inspect(cmd, filename); err != nil {
				return err
			}
		}
		return nil
	},
}

func inspect(cmd *cobra.Command, filename string) error {
	f, err := openInput(cmd, filename)
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	r := reader.NewReader(f)
	h, err := r.Header()
	if err != nil {
		return err
	}
	explainStream(out, h)
	for {
		s, err := r.Next()
		if err == io.EOF {
			fmt.Fprintln(out, "Reached end of stream.")
			return nil
		}
		if err != nil {
			return err
		}
		entries, err := s.Entries()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "======Segment %d======\n", s.Index)
		fmt.Fprintf(out, "Stored: %d header bytes, %d body bytes\n", s.Preamble.HeaderLen, s.Preamble.BodyLen)
		fmt.Fprintf(out, "Checksum: %x\n", s.Preamble.Checksum)
		fmt.Fprintf(out, "Compression: %s, %d bytes uncompressed\n", s.Header.Compression, s.Header.BodySize)
		fmt.Fprintf(out, "Files: %d, classes: %d\n", s.Header.Entries, s.Header.Classes)
		spew.Fdump(out, s.Header)
		for _, e := range entries {
			fmt.Fprintf(out, "  %8d %s %s\n", len(e.Data), e.ModTime.Format("2006-01-02 15:04:05"), e.Name)
		}
	}
}

func explainStream(out io.Writer, h *format.StreamHeader) {
	fmt.Fprintf(out, "======Stream======\n")
	fmt.Fprintf(out, "Version: %s\n", h.Version())
	fmt.Fprintf(out, "Flags: %#04x\n", uint16(h.Flags))
	fmt.Fprintf(out, "Compression: %s\n", h.Compression)
	fmt.Fprintf(out, "Effort: %d\n", h.Effort)
	fmt.Fprintf(out, "Segments: %d\n", h.Segments)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
