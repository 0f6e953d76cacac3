package ota

import (
	"net/url"
	"strings"
)

const (
	// ManifestName is the version manifest inside the node directory.
	ManifestName = "version.json"

	rawGitHubHost = "raw.githubusercontent.com"
)

// Identity names a node and where its firmware is published. It does not
// change while the process runs.
type Identity struct {
	NodeID      string
	RepoURL     string
	PayloadName string
}

// NodeDir is the node's directory relative to the repository root.
func (i Identity) NodeDir() string {
	return "main/node_" + i.NodeID
}

// RawRepoURL returns RepoURL with GitHub page URLs rewritten to the raw
// content host, which serves file bytes instead of HTML.
func (i Identity) RawRepoURL() string {
	repo := strings.TrimRight(i.RepoURL, "/")
	u, err := url.Parse(repo)
	if err != nil {
		return repo
	}
	switch u.Host {
	case "github.com", "www.github.com":
		u.Host = rawGitHubHost
		u.Path = strings.TrimSuffix(u.Path, ".git")
		return u.String()
	}
	return repo
}

// BaseURL is the URL of the node directory.
func (i Identity) BaseURL() string {
	return i.RawRepoURL() + "/" + i.NodeDir()
}

// ManifestURL is where the node's version manifest is published.
func (i Identity) ManifestURL() string {
	return i.BaseURL() + "/" + ManifestName
}

// PayloadURL is where the node's firmware archive is published.
func (i Identity) PayloadURL() string {
	return i.BaseURL() + "/" + i.PayloadName
}
