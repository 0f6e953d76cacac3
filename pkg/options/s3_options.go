package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the S3-compatible firmware source. It is only used when
// the node's firmware source is "s3".
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`

	// Prefix is prepended to the repository layout, e.g. "fleet-a" gives
	// fleet-a/main/node_{id}/version.json.
	Prefix string `json:"prefix" mapstructure:"prefix"`

	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:   "s3.amazonaws.com",
		UseSSL:     true,
		BucketName: "firmware",
		Region:     "us-east-1",
	}
}

func (o *S3Options) Validate() []error {
	var errs []error

	if o.Endpoint == "" {
		errs = append(errs, fmt.Errorf("--s3.endpoint must not be empty"))
	}
	if o.BucketName == "" {
		errs = append(errs, fmt.Errorf("--s3.bucket-name must not be empty"))
	}

	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local:9000)")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket holding the firmware repository")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.StringVar(&o.Prefix, "s3.prefix", o.Prefix, "Object key prefix of the firmware repository")
	fs.BoolVar(&o.InsecureSkipVerify, "s3.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS verification for the S3 endpoint")
}
