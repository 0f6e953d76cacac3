package options

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NodeOptions)(nil)

const (
	SourceHTTP = "http"
	SourceS3   = "s3"
)

// NodeOptions carries the node identity and its on-device storage layout.
// The identity is fixed for the lifetime of a build; the defaults are the
// compiled-in values.
type NodeOptions struct {
	// ID is the node number used in topic names and the repository layout.
	ID string `json:"id" mapstructure:"id"`

	// RepoURL is the base URL of the firmware repository.
	RepoURL string `json:"repo-url" mapstructure:"repo-url"`

	// PayloadName is the archive file published next to version.json.
	PayloadName string `json:"payload-name" mapstructure:"payload-name"`

	// Source selects how the repository is reached: "http" or "s3".
	Source string `json:"source" mapstructure:"source"`

	// DataDir holds version.json, the calibration offsets and the staging file.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// InstallDir is where archive entries are extracted. Relative paths are
	// resolved against DataDir.
	InstallDir string `json:"install-dir" mapstructure:"install-dir"`
}

func NewNodeOptions() *NodeOptions {
	return &NodeOptions{
		ID:          "1",
		RepoURL:     "https://github.com/autopeer-io/sensornode-firmware",
		PayloadName: "firmware.tar",
		Source:      SourceHTTP,
		DataDir:     "/var/lib/cpeer-node",
		InstallDir:  "app",
	}
}

func (o *NodeOptions) Validate() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, fmt.Errorf("--node.id must not be empty"))
	}
	if o.Source != SourceHTTP && o.Source != SourceS3 {
		errs = append(errs, fmt.Errorf("--node.source must be %q or %q, got %q", SourceHTTP, SourceS3, o.Source))
	}
	if o.Source == SourceHTTP {
		if u, err := url.Parse(o.RepoURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("--node.repo-url must be an absolute URL, got %q", o.RepoURL))
		}
	}
	if o.PayloadName == "" || filepath.Base(o.PayloadName) != o.PayloadName {
		errs = append(errs, fmt.Errorf("--node.payload-name must be a plain file name, got %q", o.PayloadName))
	}
	if o.DataDir == "" {
		errs = append(errs, fmt.Errorf("--node.data-dir must not be empty"))
	}

	return errs
}

func (o *NodeOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, "node.id", o.ID, "Node number used in topics and in the firmware repository layout.")
	fs.StringVar(&o.RepoURL, "node.repo-url", o.RepoURL, "Base URL of the firmware repository.")
	fs.StringVar(&o.PayloadName, "node.payload-name", o.PayloadName, "Name of the firmware archive in the repository.")
	fs.StringVar(&o.Source, "node.source", o.Source, "Firmware source: 'http' or 's3'.")
	fs.StringVar(&o.DataDir, "node.data-dir", o.DataDir, "Directory for the version record, calibration offsets and staging files.")
	fs.StringVar(&o.InstallDir, "node.install-dir", o.InstallDir, "Directory the firmware archive is extracted into.")
}

// InstallPath resolves InstallDir against DataDir.
func (o *NodeOptions) InstallPath() string {
	if filepath.IsAbs(o.InstallDir) {
		return o.InstallDir
	}
	return filepath.Join(o.DataDir, o.InstallDir)
}
