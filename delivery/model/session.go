package model

type (
	SessionResponse struct {
		State       string          `json:"state"`
		Identity    string          `json:"identity,omitempty"`
		DisplayName string          `json:"displayName,omitempty"`
		ShopName    string          `json:"shopName,omitempty"`
		Avatar      string          `json:"avatar,omitempty"`
		ProfileErr  string          `json:"profileError,omitempty"`
		Routes      []RouteResponse `json:"routes"`
	}

	RouteResponse struct {
		Path   string `json:"path"`
		Name   string `json:"name"`
		Layout string `json:"layout"`
	}
)

type (
	SubmitLoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	SubmitSignupRequest struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	SubmitAuthResponse struct {
		Identity string `json:"identity,omitempty"`
		Message  string `json:"message,omitempty"`
		Error    string `json:"error,omitempty"`
	}
)
