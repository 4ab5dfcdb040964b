package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/indrora/pack200/pack200/archive"
)

// openInput opens path for reading, "-" being stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

func readJar(cmd *cobra.Command, path string) (*archive.Archive, error) {
	f, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// The zip reader needs random access.
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return archive.ReadZip(bytes.NewReader(data), int64(len(data)))
}

// writeOutput replaces path with data, "-" being stdout. Output is only
// created once the whole result is known to be good.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
