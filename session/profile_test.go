package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileFallbacks(t *testing.T) {
	var empty Profile

	assert.Equal(t, "Alice", empty.DisplayName("alice@shop.example"))
	assert.Equal(t, "Guest", empty.DisplayName(""))
	assert.Equal(t, DefaultAvatar, empty.Avatar())
	assert.Empty(t, empty.ShopName())
	assert.Empty(t, empty.Clone())
}

func TestProfileAvatar(t *testing.T) {
	hosted := Profile{"image_data": map[string]any{"url": "https://cdn.example/a.png"}}
	inline := Profile{"image_data": "data:image/png;base64,AAAA"}
	wrongType := Profile{"image_data": 42}

	assert.Equal(t, "https://cdn.example/a.png", hosted.Avatar())
	assert.Equal(t, "data:image/png;base64,AAAA", inline.Avatar())
	assert.Equal(t, DefaultAvatar, wrongType.Avatar())
}

func TestProfileAvatarRejectsUnsafeReferences(t *testing.T) {
	for _, ref := range []string{
		"javascript:alert(1)",
		"data:text/html;base64,PHNjcmlwdD4=",
		"data:image/png,raw",
		"//evil.example/a.png",
		"/static/a.png\" onerror=\"x",
	} {
		assert.Equal(t, DefaultAvatar, Profile{"image_data": ref}.Avatar(), ref)
	}
	assert.Equal(t, "/uploads/a.png", Profile{"image_data": "/uploads/a.png"}.Avatar())
	assert.Equal(t, "data:image/jpeg;base64,AAAA", Profile{"image_data": map[string]any{"url": "data:image/jpeg;base64,AAAA"}}.Avatar())
}

func TestProfileStringIgnoresNonStrings(t *testing.T) {
	p := Profile{"username": 7, "phone": "  555  "}

	assert.Equal(t, "Bob", p.DisplayName("bob@example.com"))
	assert.Equal(t, "555", p.Phone())
}
