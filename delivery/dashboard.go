package delivery

import (
	"net/http"
	"strings"

	"medstore-console/session"
)

// Profile fields editable from the admin profile page.
var profileFields = []string{"username", "phone", "address", "image_data"}

// adminView fills the sidebar and the profile banner. Missing profile fields
// fall back to the identity and the default avatar.
func (h *HTTPEndpoint) adminView(snap session.Snapshot) adminData {
	data := adminData{
		Sidebar:     h.app.Guard().VisibleIn(adminLayout, snap),
		DisplayName: snap.Profile.DisplayName(snap.Identity),
		ShopName:    snap.Profile.ShopName(),
		Avatar:      avatarURL(snap.Profile),
		Username:    snap.Profile.String("username"),
		Phone:       snap.Profile.Phone(),
		Address:     snap.Profile.Address(),
		Image:       currentImage(snap.Profile),
	}
	if snap.ProfileErr != nil {
		data.ProfileErr = "Failed to load user information"
	}
	return data
}

func currentImage(p session.Profile) string {
	if avatar := p.Avatar(); avatar != session.DefaultAvatar {
		return avatar
	}
	return ""
}

func (h *HTTPEndpoint) adminIndexHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin/default", http.StatusSeeOther)
}

// dashboardHandler renders every admin view that has no dedicated handler.
func (h *HTTPEndpoint) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	snap := store.Snapshot()
	h.render(w, r, dashboardTemplate, "layout", http.StatusOK, h.layout(r, snap, h.adminView(snap)))
}

func (h *HTTPEndpoint) profileHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	snap := store.Snapshot()
	h.render(w, r, profileTemplate, "layout", http.StatusOK, h.layout(r, snap, h.adminView(snap)))
}

// profileSubmitHandler sends only the fields that differ from the loaded
// profile. An unchanged form sends nothing.
func (h *HTTPEndpoint) profileSubmitHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	before := store.Snapshot()

	patch := session.Profile{}
	for _, field := range profileFields {
		if _, sent := r.PostForm[field]; !sent {
			continue
		}
		value := strings.TrimSpace(r.PostForm.Get(field))
		current := before.Profile.String(field)
		if field == "image_data" {
			current = currentImage(before.Profile)
		}
		if value != current {
			patch[field] = value
		}
	}

	status := http.StatusOK
	var notice, failure string
	if len(patch) > 0 {
		_, err := store.UpdateProfile(ctx, patch)
		if perr := h.app.Persist(ctx); perr != nil {
			h.app.Logger().WarnContext(ctx, "failed to persist credentials", "error", perr)
		}
		if err != nil {
			failure = session.Message(err, "Failed to update user information")
			status = http.StatusUnprocessableEntity
		} else {
			notice = h.app.Copy(r).T("notice.profile_updated", "Profile updated")
		}
	}

	snap := store.Snapshot()
	view := h.adminView(snap)
	if failure != "" {
		// keep what the user typed
		view.Username = r.PostForm.Get("username")
		view.Phone = r.PostForm.Get("phone")
		view.Address = r.PostForm.Get("address")
		view.Image = r.PostForm.Get("image_data")
	}
	view.Error = failure
	view.Success = notice
	h.render(w, r, profileTemplate, "layout", status, h.layout(r, snap, view))
}
