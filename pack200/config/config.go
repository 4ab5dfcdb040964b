// Package config holds the packing options. A Config is built once, through
// options, a properties map or a YAML document, and is read-only afterwards.
package config

import (
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/segment"
)

// Property names.
const (
	EFFORT             = "effort"
	SEGMENT_LIMIT      = "segment-limit"
	DEFLATE_HINT       = "deflate-hint"
	KEEP_FILE_ORDER    = "keep-file-order"
	MODIFICATION_TIME  = "modification-time"
	UNKNOWN_ATTRIBUTE  = "unknown-attribute"
	CLASS_FORMAT_ERROR = "class-format-error"
	COMPRESSION        = "compression"
)

const (
	DEFAULT_EFFORT = 5
	MAX_EFFORT     = 9
)

// Layouts for attributes that are not part of the class file format but are
// common enough to deserve one.
var defaultAttributes = map[string]string{
	"class-attribute:CompilationID":      "RUH",
	"class-attribute:SourceID":           "RUH",
	"code-attribute:CharacterRangeTable": "NH[PHPOHIIH]",
	"code-attribute:CoverageTable":       "NH[PHHII]",
}

type ModTimeMode uint8

const (
	// Every entry keeps its own time.
	MODTIME_KEEP ModTimeMode = iota
	// Every entry gets the latest time found in the archive.
	MODTIME_LATEST
	// Every entry gets ModTime.Time.
	MODTIME_FIXED
)

type ModTime struct {
	Mode ModTimeMode
	Time time.Time
}

func (m ModTime) String() string {
	switch m.Mode {
	case MODTIME_LATEST:
		return "LATEST"
	case MODTIME_FIXED:
		return m.Time.UTC().Format(time.RFC3339)
	default:
		return "KEEP"
	}
}

// ParseModTime accepts KEEP, LATEST, an RFC 3339 time or unix seconds.
func ParseModTime(s string) (ModTime, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "KEEP":
		return ModTime{Mode: MODTIME_KEEP}, nil
	case "LATEST":
		return ModTime{Mode: MODTIME_LATEST}, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ModTime{Mode: MODTIME_FIXED, Time: time.Unix(secs, 0).UTC()}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ModTime{}, errors.Errorf("bad modification time %q", s)
	}
	return ModTime{Mode: MODTIME_FIXED, Time: t.Truncate(time.Second).UTC()}, nil
}

func ParseDeflateHint(s string) (format.DeflateHint, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KEEP":
		return format.DEFLATE_KEEP, nil
	case "TRUE":
		return format.DEFLATE_TRUE, nil
	case "FALSE":
		return format.DEFLATE_FALSE, nil
	}
	return 0, errors.Errorf("bad deflate hint %q", s)
}

func ParseCompression(s string) (format.CompressionType, error) {
	for _, c := range []format.CompressionType{
		format.COMPRESSION_NONE,
		format.COMPRESSION_ZSTD,
		format.COMPRESSION_GZIP,
		format.COMPRESSION_BROTLI,
	} {
		if strings.EqualFold(strings.TrimSpace(s), c.String()) {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown compression %q", s)
}

type Config struct {
	Effort        int
	SegmentLimit  int64
	DeflateHint   format.DeflateHint
	KeepFileOrder bool
	ModTime       ModTime
	// PASS, STRIP or ERROR for attributes nothing else names.
	UnknownAttribute attr.Action
	// PASS stores unparseable classes as resources, ERROR aborts.
	ClassFormatError attr.Action
	Compression      format.CompressionType
	// Per-attribute rules, defaults included. Set through WithAttribute.
	attributes map[attr.Key]attr.Rule

	Logger *slog.Logger
	// 0 means one per CPU.
	Workers int

	engine *attr.Engine
}

// Option configures a Config.
type Option func(*Config) error

func defaults() *Config {
	c := &Config{
		Effort:           DEFAULT_EFFORT,
		SegmentLimit:     segment.Unbounded,
		DeflateHint:      format.DEFLATE_KEEP,
		KeepFileOrder:    true,
		ModTime:          ModTime{Mode: MODTIME_KEEP},
		UnknownAttribute: attr.ACTION_PASS,
		ClassFormatError: attr.ACTION_PASS,
		Compression:      format.COMPRESSION_ZSTD,
		attributes:       map[attr.Key]attr.Rule{},
	}
	for k, v := range defaultAttributes {
		key, _ := attr.ParseKey(k)
		c.attributes[key] = attr.Rule{Action: attr.ACTION_ENCODE, Layout: v}
	}
	return c
}

// Default is the configuration with every property at its default.
func Default() *Config {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

func New(opts ...Option) (*Config, error) {
	c := defaults()
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(format.ErrInvalidConfig, err.Error())
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Effort < 0 || c.Effort > MAX_EFFORT {
		return errors.Wrapf(format.ErrInvalidConfig, "effort %d out of range 0..%d", c.Effort, MAX_EFFORT)
	}
	if c.SegmentLimit < segment.Unbounded {
		return errors.Wrapf(format.ErrInvalidConfig, "segment limit %d", c.SegmentLimit)
	}
	if c.ClassFormatError != attr.ACTION_PASS && c.ClassFormatError != attr.ACTION_ERROR {
		return errors.Wrapf(format.ErrInvalidConfig, "class-format-error cannot be %s", c.ClassFormatError)
	}
	if !c.Compression.Valid() {
		return errors.Wrapf(format.ErrInvalidConfig, "compression %d", c.Compression)
	}
	if c.Workers < 0 {
		return errors.Wrapf(format.ErrInvalidConfig, "%d workers", c.Workers)
	}
	e, err := attr.NewEngine(c.attributes, c.UnknownAttribute)
	if err != nil {
		return errors.Wrap(format.ErrInvalidConfig, err.Error())
	}
	c.engine = e
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Engine is the attribute policy built from the configuration.
func (c *Config) Engine() *attr.Engine {
	return c.engine
}

// Rules returns a copy of the per-attribute rules, defaults included.
func (c *Config) Rules() map[attr.Key]attr.Rule {
	return maps.Clone(c.attributes)
}

// WorkerCount is the number of goroutines to use for parallel work.
func (c *Config) WorkerCount() int {
	if c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

// Properties renders every property with its effective value.
func (c *Config) Properties() map[string]string {
	p := map[string]string{
		EFFORT:             strconv.Itoa(c.Effort),
		SEGMENT_LIMIT:      strconv.FormatInt(c.SegmentLimit, 10),
		DEFLATE_HINT:       c.DeflateHint.String(),
		KEEP_FILE_ORDER:    strconv.FormatBool(c.KeepFileOrder),
		MODIFICATION_TIME:  c.ModTime.String(),
		UNKNOWN_ATTRIBUTE:  c.UnknownAttribute.String(),
		CLASS_FORMAT_ERROR: c.ClassFormatError.String(),
		COMPRESSION:        c.Compression.String(),
	}
	for k, r := range c.attributes {
		p[k.String()] = r.String()
	}
	return p
}

func (c *Config) String() string {
	p := c.Properties()
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, p[k])
	}
	return sb.String()
}

func WithEffort(n int) Option {
	return func(c *Config) error {
		c.Effort = n
		return nil
	}
}

// WithSegmentLimit bounds segment size in bytes; segment.Unbounded disables it.
func WithSegmentLimit(n int64) Option {
	return func(c *Config) error {
		c.SegmentLimit = n
		return nil
	}
}

func WithDeflateHint(h format.DeflateHint) Option {
	return func(c *Config) error {
		c.DeflateHint = h
		return nil
	}
}

func WithKeepFileOrder(keep bool) Option {
	return func(c *Config) error {
		c.KeepFileOrder = keep
		return nil
	}
}

func WithModTime(m ModTime) Option {
	return func(c *Config) error {
		c.ModTime = m
		return nil
	}
}

func WithUnknownAttribute(a attr.Action) Option {
	return func(c *Config) error {
		c.UnknownAttribute = a
		return nil
	}
}

func WithClassFormatError(a attr.Action) Option {
	return func(c *Config) error {
		c.ClassFormatError = a
		return nil
	}
}

func WithCompression(ctype format.CompressionType) Option {
	return func(c *Config) error {
		c.Compression = ctype
		return nil
	}
}

// WithAttribute sets the rule for one attribute, e.g.
// WithAttribute("code-attribute:StackMapTable", "STRIP").
func WithAttribute(key, value string) Option {
	return func(c *Config) error {
		k, err := attr.ParseKey(key)
		if err != nil {
			return err
		}
		r, err := attr.ParseRule(value)
		if err != nil {
			return errors.Wrap(err, key)
		}
		c.attributes[k] = r
		return nil
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) error {
		c.Workers = n
		return nil
	}
}

// WithProperty sets one property by name, as found in a properties file.
func WithProperty(key, value string) Option {
	return func(c *Config) error {
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case EFFORT:
			c.Effort, err = strconv.Atoi(value)
		case SEGMENT_LIMIT:
			c.SegmentLimit, err = strconv.ParseInt(value, 10, 64)
		case DEFLATE_HINT:
			c.DeflateHint, err = ParseDeflateHint(value)
		case KEEP_FILE_ORDER:
			c.KeepFileOrder, err = strconv.ParseBool(value)
		case MODIFICATION_TIME:
			c.ModTime, err = ParseModTime(value)
		case UNKNOWN_ATTRIBUTE:
			c.UnknownAttribute, err = attr.ParseAction(value)
		case CLASS_FORMAT_ERROR:
			c.ClassFormatError, err = attr.ParseAction(value)
		case COMPRESSION:
			c.Compression, err = ParseCompression(value)
		default:
			if !attr.IsKey(key) {
				return errors.Errorf("unknown property %q", key)
			}
			return WithAttribute(key, value)(c)
		}
		return errors.Wrapf(err, "property %s", key)
	}
}

// FromProperties builds a Config from a properties map. opts are applied
// after the properties.
func FromProperties(props map[string]string, opts ...Option) (*Config, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	all := make([]Option, 0, len(props)+len(opts))
	for _, k := range keys {
		all = append(all, WithProperty(k, props[k]))
	}
	return New(append(all, opts...)...)
}
