package delivery

import (
	"embed"
	"html/template"
	"io/fs"

	"medstore-console/authflow"
	"medstore-console/guard"
	"medstore-console/i18n"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Declare global variables for all your templates.
var (
	homeTemplate      *template.Template
	loginTemplate     *template.Template
	popupTemplate     *template.Template
	dashboardTemplate *template.Template
	profileTemplate   *template.Template
	errorTemplate     *template.Template
)

// ParseAllTemplates pre-parses all HTML templates at startup for efficiency.
func ParseAllTemplates() {
	homeTemplate = parsePage("home.html")
	loginTemplate = parsePage("login.html")
	dashboardTemplate = parsePage("admin.html", "dashboard.html")
	profileTemplate = parsePage("admin.html", "profile.html")
	popupTemplate = template.Must(template.ParseFS(templatesFS, "templates/popup.html", "templates/authform.html"))
	errorTemplate = template.Must(template.ParseFS(templatesFS, "templates/error.html"))
}

// parsePage parses the shared layout with the page's own templates.
func parsePage(names ...string) *template.Template {
	patterns := []string{"templates/layout.html", "templates/popup.html", "templates/authform.html"}
	for _, name := range names {
		patterns = append(patterns, "templates/"+name)
	}
	return template.Must(template.ParseFS(templatesFS, patterns...))
}

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// layoutData is passed to every page rendered inside the console layout.
type layoutData struct {
	Title         string
	Secondary     bool
	Nav           []guard.Route
	Authenticated bool
	DisplayName   string
	Avatar        template.URL
	Notice        string
	Copy          *i18n.Copy
	Popup         *authFormData
	Content       any
}

// authFormData renders one state of the auth widget.
type authFormData struct {
	State       authflow.State
	SignUp      bool
	FormID      string
	ReturnTo    string
	Popup       bool
	CloseURL    string
	ProviderURL string
	Copy        *i18n.Copy
}

// adminData backs the admin layout and the profile form.
type adminData struct {
	Sidebar     []guard.Route
	DisplayName string
	ShopName    string
	Avatar      template.URL
	ProfileErr  string

	Username string
	Phone    string
	Address  string
	Image    string
	Error    string
	Success  string
}

type errorPageData struct {
	Title string
	Error struct {
		ID     string
		Reason string
	}
}
