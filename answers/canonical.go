package answers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	apperrors "answer-engine/errors"
)

// VersionAny is the version slot used by version-agnostic canonical ids.
const VersionAny = "any"

const slugMaxLen = 60

// platformVocab maps raw platform strings to the small fixed vocabulary.
// Anything not listed falls into the generic "other" bucket.
var platformVocab = map[string]string{
	"mozaik":         "mozaik",
	"mozaik-cnc":     "mozaik",
	"cabinet-vision": "cabinet-vision",
	"cabinetvision":  "cabinet-vision",
	"microvellum":    "microvellum",
	"kcd":            "kcd",
	"web":            "web",
}

// NormalizePlatform maps a raw platform string onto the fixed vocabulary.
func NormalizePlatform(platform string) string {
	key := strings.ToLower(strings.TrimSpace(platform))
	if canonical, ok := platformVocab[key]; ok {
		return canonical
	}
	return "other"
}

// NormalizeVersion trims and lower-cases a version string, preserving its
// dot-separated numeric structure.
func NormalizeVersion(version string) string {
	return strings.ToLower(strings.TrimSpace(version))
}

// normalizeQuestion trims, collapses whitespace, and lower-cases, so that
// incidental formatting differences never change the cache key.
func normalizeQuestion(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

// CanonicalID derives the deterministic cache key for a question. The key
// has the shape platform:version:question-slug, where the slug carries a
// content hash so distinct questions with the same prefix never collide.
// Pass an empty version for the version-agnostic key.
func CanonicalID(question, platform, version string) (string, error) {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "question must not be empty")
	}

	versionSlot := NormalizeVersion(version)
	if versionSlot == "" {
		versionSlot = VersionAny
	}

	return NormalizePlatform(platform) + ":" + versionSlot + ":" + questionSlug(normalized), nil
}

// CanonicalKeys returns the version-specific key and the version-agnostic
// fallback key for one request. When no version is supplied the two keys
// are identical.
func CanonicalKeys(question, platform, version string) (versioned string, fallback string, err error) {
	versioned, err = CanonicalID(question, platform, version)
	if err != nil {
		return "", "", err
	}
	fallback, err = CanonicalID(question, platform, "")
	if err != nil {
		return "", "", err
	}
	return versioned, fallback, nil
}

func questionSlug(normalized string) string {
	var builder strings.Builder
	lastHyphen := true
	for _, r := range normalized {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			builder.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				builder.WriteByte('-')
				lastHyphen = true
			}
		}
		if builder.Len() >= slugMaxLen {
			break
		}
	}
	slug := strings.Trim(builder.String(), "-")

	sum := sha256.Sum256([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:12]
	if slug == "" {
		return digest
	}
	return slug + "-" + digest
}
