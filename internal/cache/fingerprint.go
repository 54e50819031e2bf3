package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Bump the version suffix if the canonical form below ever changes.
const fingerprintDomain = "content-gateway/fingerprint/v1"

// NormalizeDescription lowercases, trims and collapses whitespace so trivially different
// inputs share a fingerprint.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Fingerprint identifies a cacheable unit of work: the content type, the normalized
// description and only the options that change that type's output.
func Fingerprint(c models.ContentType, description string, opts models.Options) string {
	parts := []string{string(c), NormalizeDescription(description)}

	switch c {
	case models.ContentBlog:
		parts = append(parts, "lang="+norm(opts.Language))
	case models.ContentImage:
		parts = append(parts, "style="+norm(opts.ImageStyle))
	case models.ContentVideo:
		parts = append(parts, "duration="+strconv.Itoa(opts.VideoDurationSeconds))
	case models.ContentPodcast:
		parts = append(parts, "voice="+norm(opts.VoiceStyle), "lang="+norm(opts.Language))
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
