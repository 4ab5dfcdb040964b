package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
)

// packFlags registers the packer properties as flags. Flags are strings so
// they accept exactly what a properties file accepts.
func packFlags(fs *pflag.FlagSet) {
	fs.StringP(config.EFFORT, "E", "", "Effort from 0 (store) to 9 (smallest), default 5")
	fs.StringP(config.SEGMENT_LIMIT, "S", "", "Estimated segment size limit in bytes, -1 for one segment")
	fs.StringP(config.DEFLATE_HINT, "H", "", "Deflate hint: TRUE, FALSE or KEEP")
	fs.StringP(config.MODIFICATION_TIME, "m", "", "Modification times: KEEP, LATEST, unix seconds or RFC 3339")
	fs.String(config.KEEP_FILE_ORDER, "", "Keep the input order of files: true or false")
	fs.StringP(config.UNKNOWN_ATTRIBUTE, "U", "", "Action for unknown attributes: ERROR, STRIP or PASS")
	fs.String(config.CLASS_FORMAT_ERROR, "", "Action for unreadable class files: ERROR or PASS")
	fs.StringP(config.COMPRESSION, "c", "", "Segment compression: none, gzip, zstd or brotli")
	fs.StringArray("attribute", nil, "Attribute rule as context-attribute:Name=ACTION|LAYOUT, repeatable")
	fs.StringP("config-file", "f", "", "YAML file of packer properties")
}

// packConfig builds the packer configuration. Flags override the config
// file.
func packConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()
	opts := []config.Option{config.WithLogger(logger(cmd))}
	for _, key := range []string{
		config.EFFORT,
		config.SEGMENT_LIMIT,
		config.DEFLATE_HINT,
		config.MODIFICATION_TIME,
		config.KEEP_FILE_ORDER,
		config.UNKNOWN_ATTRIBUTE,
		config.CLASS_FORMAT_ERROR,
		config.COMPRESSION,
	} {
		if fs.Changed(key) {
			v, _ := fs.GetString(key)
			opts = append(opts, config.WithProperty(key, v))
		}
	}
	rules, _ := fs.GetStringArray("attribute")
	for _, r := range rules {
		key, value, ok := strings.Cut(r, "=")
		if !ok {
			return nil, errors.Wrapf(format.ErrInvalidConfig, "attribute rule %q has no '='", r)
		}
		opts = append(opts, config.WithAttribute(key, value))
	}

	path, _ := fs.GetString("config-file")
	if path == "" {
		return config.New(opts...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(format.ErrInvalidConfig, err.Error())
	}
	defer f.Close()
	return config.Load(f, opts...)
}
