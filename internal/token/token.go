// Package token encodes and decodes the opaque identifiers embedded in
// tracking beacons, rewritten links, and unsubscribe URLs. Tokens are
// URL-safe base64 over a colon-joined tuple, so external handlers can map
// them back to a (campaign, recipient) pair without a lookup table.
package token

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeOpen builds an open-beacon token: campaign:recipient:issued-at.
func EncodeOpen(campaignID, recipientID int, issuedAt time.Time) string {
	data := fmt.Sprintf("%d:%d:%d", campaignID, recipientID, issuedAt.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(data))
}

func DecodeOpen(token string) (campaignID, recipientID int, issuedAt time.Time, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("decode open token: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return 0, 0, time.Time{}, fmt.Errorf("malformed open token")
	}
	campaignID, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed open token: %w", err)
	}
	recipientID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed open token: %w", err)
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed open token: %w", err)
	}
	return campaignID, recipientID, time.Unix(unix, 0).UTC(), nil
}

// EncodeClick builds a click token: campaign:recipient:original-url. The URL
// goes last so its own colons survive the split.
func EncodeClick(campaignID, recipientID int, url string) string {
	data := fmt.Sprintf("%d:%d:%s", campaignID, recipientID, url)
	return base64.RawURLEncoding.EncodeToString([]byte(data))
}

func DecodeClick(token string) (campaignID, recipientID int, url string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode click token: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return 0, 0, "", fmt.Errorf("malformed click token")
	}
	campaignID, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", fmt.Errorf("malformed click token: %w", err)
	}
	recipientID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, "", fmt.Errorf("malformed click token: %w", err)
	}
	return campaignID, recipientID, parts[2], nil
}
