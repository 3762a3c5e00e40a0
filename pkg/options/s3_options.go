package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configure the optional archive of crossing journals to
// S3-compatible storage. An empty Endpoint disables archiving.
type S3Options struct {
	Endpoint        string        `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string        `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string        `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool          `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string        `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string        `json:"region" mapstructure:"region"`
	ArchiveInterval time.Duration `json:"archive-interval" mapstructure:"archive-interval"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		UseSSL:          true,
		BucketName:      "crossway-journal",
		Region:          "us-east-1",
		ArchiveInterval: 5 * time.Minute,
	}
}

// Enabled reports whether an archive endpoint is configured.
func (o *S3Options) Enabled() bool {
	return o != nil && o.Endpoint != ""
}

func (o *S3Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errs := []error{}
	if o.BucketName == "" {
		errs = append(errs, errors.New("s3.bucket-name is required when s3.endpoint is set"))
	}
	if o.ArchiveInterval <= 0 {
		errs = append(errs, errors.New("s3.archive-interval must be positive"))
	}
	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, join(prefixes, "s3.endpoint"), o.Endpoint, "S3 service endpoint (e.g. minio.local:9000). Empty disables journal archiving.")
	fs.StringVar(&o.AccessKeyID, join(prefixes, "s3.access-key-id"), o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, join(prefixes, "s3.secret-access-key"), o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, join(prefixes, "s3.use-ssl"), o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, join(prefixes, "s3.bucket-name"), o.BucketName, "S3 bucket receiving archived crossing journals")
	fs.StringVar(&o.Region, join(prefixes, "s3.region"), o.Region, "S3 region")
	fs.DurationVar(&o.ArchiveInterval, join(prefixes, "s3.archive-interval"), o.ArchiveInterval, "How often closed crossing episodes are archived.")
}
