// Package keyring moves per-resource keys between the three client-side
// tiers: the URL fragment of a share link, a durable cache of transport
// keys, and a session-scoped cache of password-derived keys. Fragments are
// never part of an HTTP request, which is the core privacy property of the
// share-link scheme.
package keyring

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sora-grayscale/splitvault/crypto"
)

// ParseFragment extracts a transport key from a share link's fragment.
// The second return is false when the link carries no fragment at all;
// a fragment that is present but not a well-formed key is an error.
func ParseFragment(shareURL *url.URL) ([]byte, bool, error) {
	fragment := shareURL.EscapedFragment()
	if fragment == "" {
		return nil, false, nil
	}
	key, err := crypto.DecodeKey(fragment)
	if err != nil {
		return nil, true, fmt.Errorf("parsing share link fragment: %w", err)
	}
	return key, true, nil
}

// ParseFragmentString is ParseFragment over a raw fragment value, with or
// without the leading '#'.
func ParseFragmentString(fragment string) ([]byte, bool, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return nil, false, nil
	}
	key, err := crypto.DecodeKey(fragment)
	if err != nil {
		return nil, true, fmt.Errorf("parsing share link fragment: %w", err)
	}
	return key, true, nil
}

// Fragment renders the canonical fragment for a transport key, including
// the leading '#'.
func Fragment(transportKey []byte) string {
	return "#" + crypto.EncodeKey(transportKey)
}

// SetFragment writes the canonical fragment onto a share link in place.
func SetFragment(shareURL *url.URL, transportKey []byte) {
	shareURL.Fragment = crypto.EncodeKey(transportKey)
}
