package redis

import (
	"encoding/base64"
	"whitelistbot/internal/types"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

// encodeEntries encodes the whitelist as JSON, compresses and base64-url encodes it.
func encodeEntries(entries []types.WhitelistEntry) (string, error) {
	if entries == nil {
		entries = []types.WhitelistEntry{}
	}
	s, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	b := enc.EncodeAll(s, make([]byte, 0, len(s)))
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decodeEntries reverses encodeEntries. An empty field decodes to an empty whitelist.
func decodeEntries(in string) ([]types.WhitelistEntry, error) {
	if in == "" {
		return []types.WhitelistEntry{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(in)
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, err
	}
	var entries []types.WhitelistEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []types.WhitelistEntry{}
	}
	return entries, nil
}
