package heartbeat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// nodeURL returns the node resource URL under the API base URL.
func nodeURL(apiURL, nodeID string) (string, error) {
	if nodeID == "" {
		return "", errors.New("node id must not be empty")
	}
	if nodeID == "." || nodeID == ".." || strings.Contains(nodeID, "/") {
		return "", fmt.Errorf("node id %q is not a single path segment", nodeID)
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse API URL %s: %v", apiURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("API URL %q must be absolute", apiURL)
	}

	return u.JoinPath("node", url.PathEscape(nodeID)).String(), nil
}
