package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*JournalOptions)(nil)

// JournalOptions locate the on-disk crossing journal. An empty Path disables it.
type JournalOptions struct {
	Path string `json:"path" mapstructure:"path"`
}

func NewJournalOptions() *JournalOptions {
	return &JournalOptions{
		Path: "/var/lib/crossway/journal.db",
	}
}

func (o *JournalOptions) Validate() []error {
	return nil
}

func (o *JournalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, join(prefixes, "journal.path"), o.Path, "bbolt file recording crossing episodes. Empty disables the journal.")
}
