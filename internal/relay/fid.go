// ABOUTME: Format checks for file identifiers returned by the gateway
// ABOUTME: Accepts hex SHA-256 digests and IPFS-style CIDs

package relay

import (
	"encoding/hex"
	"strings"

	"github.com/ipfs/go-cid"
)

// FID formats recognised by ValidateFID.
const (
	FormatSHA256 = "sha256-hex"
	FormatCIDv0  = "cidv0"
	FormatCIDv1  = "cidv1"
)

// ValidateFID reports the format of fid, or "" when it is not a known shape.
// DeOSS identifiers and the upload fallback are both 64 hex characters.
func ValidateFID(fid string) string {
	fid = strings.TrimSpace(fid)
	if fid == "" {
		return ""
	}
	if len(fid) == 64 {
		if _, err := hex.DecodeString(fid); err == nil {
			return FormatSHA256
		}
	}
	c, err := cid.Decode(fid)
	if err != nil {
		return ""
	}
	if c.Version() == 0 {
		return FormatCIDv0
	}
	return FormatCIDv1
}
