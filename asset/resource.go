package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Resource wraps a streamable local file or remote asset.
type Resource struct {
	io.ReadCloser
	uri *url.URL
}

// Returns the path to this resource.
func (r *Resource) Path() string {
	return r.uri.String()
}

// Return the remote path to this resource. If this is a remote resource then
// this method returns the base path (without leading /) of the remote URL.
// Otherwise, this method returns the same value as Path().
func (r *Resource) RemotePath() string {
	if r.IsRemote() {
		return filepath.Base(r.uri.Path)
	}
	return r.Path()
}

// Returns true if the Resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.uri.Scheme != ""
}

// Returns the lowercased resource extension without its leading dot.
func (r *Resource) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(r.uri.Path)), ".")
}

// Create a new Resource data stream. If relTo is specified and pathToResource
// does not define a scheme, then the path to the new Resource will be generated
// by concatenating the base path of relTo and pathToResource.
//
// This function can handle http/https URLs by delegating to the net/http package.
// The caller must make sure to close the returned io.ReadCloser to prevent mem leaks.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	// Replace backslashes with forward slashes and try parsing as a URL
	uri, err := url.Parse(strings.ReplaceAll(pathToResource, `\`, `/`))
	if err != nil {
		return nil, err
	}

	// If this is a relative url, clone parent url and adjust its path
	if uri.Scheme == "" && relTo != nil {
		path := uri.Path
		uri, _ = url.Parse(relTo.uri.String())
		prefix := uri.Path
		if uri.Scheme == "" {
			prefix, err = filepath.Abs(relTo.uri.String())
			if err != nil {
				return nil, fmt.Errorf("resource: could not detect abs path for %s; %v", relTo.uri.String(), err)
			}
		}
		uri.Path = filepath.Dir(prefix) + "/" + path
	}

	var reader io.ReadCloser
	switch uri.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(uri.Path))
		if err != nil {
			return nil, err
		}
	case "http", "https":
		resp, err := http.Get(uri.String())
		if err != nil {
			return nil, fmt.Errorf("resource: could not fetch '%s': %s", uri.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("resource: could not fetch '%s': status %d", uri.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", uri.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		uri:        uri,
	}, nil
}

// Create a resource from a reader.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	uri, _ := url.Parse(name)
	return &Resource{
		ReadCloser: io.NopCloser(source),
		uri:        uri,
	}
}
