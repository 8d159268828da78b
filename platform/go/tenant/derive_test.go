package tenant

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Blog":         "acme-blog",
		"  Spaced   Out  ":  "spaced-out",
		"Already-Sluggish":  "already-sluggish",
		"Ünïcode & Symbols": "n-code-symbols",
		"UPPER":             "upper",
		"---":               "",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestSlugifyProducesValidSlugs(t *testing.T) {
	for _, name := range []string{"Acme Blog", "a", "9 to 5", "Foo--Bar"} {
		slug := Slugify(name)
		require.True(t, ValidSlug(slug), "slug %q derived from %q", slug, name)
	}
}

func TestNumberedSlug(t *testing.T) {
	require.Equal(t, "acme-blog-1", NumberedSlug("acme-blog", 1))
	require.Equal(t, "acme-blog-12", NumberedSlug("acme-blog", 12))
}

func TestDatabaseName(t *testing.T) {
	name := DatabaseName("tenant_", "acme-blog")
	require.Regexp(t, regexp.MustCompile(`^tenant_acme-blog_[a-z0-9]{6}$`), name)

	local := DatabaseName(DatabasePrefix("local"), "acme-blog")
	require.Regexp(t, regexp.MustCompile(`^local_tenant_acme-blog_[a-z0-9]{6}$`), local)
}

func TestDatabaseNameIsRandomised(t *testing.T) {
	a := DatabaseName("tenant_", "acme-blog")
	b := DatabaseName("tenant_", "acme-blog")
	require.NotEqual(t, a, b)
}

func TestRandomSuffixLength(t *testing.T) {
	require.Len(t, RandomSuffix(6), 6)
	require.Regexp(t, regexp.MustCompile(`^[a-z0-9]{10}$`), RandomSuffix(10))
}
