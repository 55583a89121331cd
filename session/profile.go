package session

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultAvatar is shown when the profile carries no image.
const DefaultAvatar = "/static/avatar.svg"

// Profile is the loosely typed account record returned by the user_info
// endpoint. Any field may be missing.
type Profile map[string]any

// Clone returns a shallow copy of p.
func (p Profile) Clone() Profile {
	if p == nil {
		return Profile{}
	}
	return maps.Clone(p)
}

// String returns the trimmed string value for key, or "".
func (p Profile) String(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// DisplayName returns the username, falling back to the title-cased local part
// of identity.
func (p Profile) DisplayName(identity string) string {
	if name := p.String("username"); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(identity), "@")
	if local == "" {
		return "Guest"
	}
	return cases.Title(language.English).String(local)
}

// ShopName returns the shop name or "".
func (p Profile) ShopName() string {
	return p.String("shop_name")
}

// Phone returns the phone number or "".
func (p Profile) Phone() string {
	return p.String("phone")
}

// Address returns the postal address or "".
func (p Profile) Address() string {
	return p.String("address")
}

// Inline image types accepted in image_data.
var inlineImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Avatar returns the image reference for the account. image_data is either a
// hosted image object with a url or an inline data URL. Anything that is not
// an http(s) URL, a local path or a base64 raster data URL yields
// DefaultAvatar, so the result is safe to place in an img src.
func (p Profile) Avatar() string {
	if p == nil {
		return DefaultAvatar
	}
	var ref string
	switch image := p["image_data"].(type) {
	case string:
		ref = image
	case map[string]any:
		ref, _ = image["url"].(string)
	}
	if ref = strings.TrimSpace(ref); isImageRef(ref) {
		return ref
	}
	return DefaultAvatar
}

func isImageRef(ref string) bool {
	if ref == "" || strings.ContainsAny(ref, " \t\r\n\"'<>") {
		return false
	}
	if strings.HasPrefix(ref, "/") {
		return !strings.HasPrefix(ref, "//")
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return true
	}
	mediaType, ok := strings.CutPrefix(lower, "data:")
	if !ok {
		return false
	}
	mediaType, payload, ok := strings.Cut(mediaType, ";base64,")
	return ok && payload != "" && slices.Contains(inlineImageTypes, mediaType)
}
