package android

import (
	"strings"
)

// Reserved tokens with no filesystem equivalent
const (
	TokenManifest = "_manifest"
	TokenKeyValue = "k"
	TokenAPK      = "a"
)

// TokenPathTemplates maps AOSP backup tokens to filesystem directories. {package}
// is replaced with the package name.
var TokenPathTemplates = map[string]string{
	"a":    "/data/app/{package}/",
	"r":    "/data/data/{package}/",
	"f":    "/data/data/{package}/files/",
	"db":   "/data/data/{package}/databases/",
	"sp":   "/data/data/{package}/shared_prefs/",
	"c":    "/data/data/{package}/cache/",
	"nb":   "/data/data/{package}/no_backup/",
	"ef":   "/storage/emulated/0/Android/data/{package}/files/",
	"obb":  "/storage/emulated/0/Android/obb/{package}/",
	"d_r":  "/data/user_de/0/{package}/",
	"d_f":  "/data/user_de/0/{package}/files/",
	"d_db": "/data/user_de/0/{package}/databases/",
	"d_sp": "/data/user_de/0/{package}/shared_prefs/",
	"d_c":  "/data/user_de/0/{package}/cache/",
	"d_nb": "/data/user_de/0/{package}/no_backup/",
}

var unmappableTokens = map[string]bool{
	TokenManifest: true,
	TokenKeyValue: true,
}

// IsUnmappableToken reports whether token has no filesystem equivalent
func IsUnmappableToken(token string) bool {
	return unmappableTokens[token]
}

// IsKnownToken reports whether token is in the AOSP catalog
func IsKnownToken(token string) bool {
	_, ok := TokenPathTemplates[token]
	return ok || unmappableTokens[token]
}

// TokenBasePath expands the template for token, without the trailing slash
func TokenBasePath(token, pkg string) (string, bool) {
	tmpl, ok := TokenPathTemplates[token]
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(strings.ReplaceAll(tmpl, "{package}", pkg), "/"), true
}

// CleanMemberName strips leading "./" and "/" sequences and trailing slashes
func CleanMemberName(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return strings.TrimRight(name, "/")
		}
	}
}

// ParseTarPath splits a tar member name into domain, token and relative path.
//
//	apps/<pkg>/<token>/<rest>  -> <pkg>, <token>, <token>/<rest>
//	apps/<pkg>                 -> <pkg>, "", ""
//	shared/<n>/<rest>          -> shared/<n>, "", <rest>
//	<first>/<rest>             -> <first>, "", <rest>
//
// Tokens outside the catalog are passed through unchanged.
func ParseTarPath(memberName string) (domain, token, relativePath string) {
	parts := strings.Split(CleanMemberName(memberName), "/")

	switch {
	case parts[0] == "apps" && len(parts) >= 2:
		if len(parts) >= 3 {
			return parts[1], parts[2], strings.Join(parts[2:], "/")
		}
		return parts[1], "", ""
	case parts[0] == "shared" && len(parts) >= 2:
		return "shared/" + parts[1], "", strings.Join(parts[2:], "/")
	default:
		return parts[0], "", strings.Join(parts[1:], "/")
	}
}
