package kernel

import (
	"log/slog"
	"slices"
)

// Implementation is reported as the kernel implementation name.
const Implementation = "wasmkernel"

// Version is reported as the implementation version. Set at build time.
var Version = "dev"

// StreamHandler receives stream notifications. It is called from the
// worker's delivery goroutine and must not block on the kernel.
type StreamHandler func(Stream)

type Option func(*config)

type config struct {
	lang      LanguageInfo
	banner    string
	helpLinks []HelpLink
	onStream  StreamHandler
	logger    *slog.Logger
}

func defaultConfig() config {
	return config{
		logger: slog.New(slog.DiscardHandler),
	}
}

func (c config) info() InfoReply {
	info := DefaultInfo(c.lang)
	if c.banner != "" {
		info.Banner = c.banner
	}
	info.HelpLinks = append(info.HelpLinks, c.helpLinks...)
	return info
}

// DefaultInfo returns the kernel info reply for lang.
func DefaultInfo(lang LanguageInfo) InfoReply {
	banner := Implementation
	if lang.Name != "" {
		banner += ": " + lang.Name + " in a WebAssembly sandbox"
	}
	return InfoReply{
		Status:                "ok",
		ProtocolVersion:       ProtocolVersion,
		Implementation:        Implementation,
		ImplementationVersion: Version,
		LanguageInfo:          lang,
		Banner:                banner,
		HelpLinks:             []HelpLink{},
	}
}

// WithLanguageInfo sets the language reported by KernelInfo.
func WithLanguageInfo(lang LanguageInfo) Option {
	return func(c *config) {
		c.lang = lang
	}
}

// WithBanner overrides the banner reported by KernelInfo.
func WithBanner(banner string) Option {
	return func(c *config) {
		c.banner = banner
	}
}

// WithHelpLinks adds help links to KernelInfo.
func WithHelpLinks(links ...HelpLink) Option {
	return func(c *config) {
		c.helpLinks = append(slices.Clone(c.helpLinks), links...)
	}
}

// WithStreamHandler sets the receiver of stdout and stderr notifications.
func WithStreamHandler(h StreamHandler) Option {
	return func(c *config) {
		c.onStream = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
