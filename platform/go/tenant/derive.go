package tenant

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugHyphens  = regexp.MustCompile(`-{2,}`)
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	suffixRunes  = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength = 6
)

// Slugify converts a human tenant name into its canonical URL-safe slug.
// "Acme Blog" -> "acme-blog". The result is empty when the name contains no
// usable characters; callers must treat that as invalid input.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ValidSlug reports whether s matches the canonical slug pattern.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// NumberedSlug returns the n-th disambiguation of a colliding slug: "acme-blog-1", "acme-blog-2", ...
func NumberedSlug(slug string, n int) string {
	return fmt.Sprintf("%s-%d", slug, n)
}

// DatabaseName derives the dedicated database name for a tenant:
// <envPrefix><slug>_<6-char-random>. The slug keeps its hyphens; every DDL
// site quotes the name through pgx.Identifier. The name is assigned exactly
// once at registration and never changes afterwards.
func DatabaseName(envPrefix, slug string) string {
	return envPrefix + slug + "_" + RandomSuffix(suffixLength)
}

// DatabasePrefix returns the environment-specific database name prefix.
func DatabasePrefix(environment string) string {
	if environment == "local" {
		return "local_tenant_"
	}
	return "tenant_"
}

// RandomSuffix returns n random lowercase alphanumeric characters.
func RandomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = suffixRunes[int(b)%len(suffixRunes)]
	}
	return string(buf)
}
