package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Headers of the client-hydration page protocol.
const (
	HeaderInertia         = "X-Inertia"
	HeaderInertiaVersion  = "X-Inertia-Version"
	HeaderInertiaLocation = "X-Inertia-Location"
)

// Page is the object handed to the client-side app for hydration.
type Page struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	URL       string         `json:"url"`
	Version   string         `json:"version"`
}

// Props is shorthand for page properties.
type Props map[string]any

var shellTemplate = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
</head>
<body>
  <div id="app" data-page="{{.PageJSON}}"></div>
  <script type="module" src="{{.Entry}}"></script>
</body>
</html>
`))

// PageRenderer answers with a JSON page object for client-side navigations
// and with an HTML shell embedding the same object on full page loads.
type PageRenderer struct {
	Version string
	Title   string
	Entry   string
}

func NewPageRenderer(version string) *PageRenderer {
	return &PageRenderer{Version: version, Title: "Velist", Entry: "/assets/app.js"}
}

func IsInertiaRequest(r *http.Request) bool {
	return r.Header.Get(HeaderInertia) == "true"
}

func (pr *PageRenderer) Render(w http.ResponseWriter, r *http.Request, status int, component string, props Props) {
	// A client built against an older asset version reloads the page in full.
	if IsInertiaRequest(r) && r.Method == http.MethodGet {
		if v := r.Header.Get(HeaderInertiaVersion); v != "" && v != pr.Version {
			Location(w, r, r.URL.RequestURI())
			return
		}
	}

	if props == nil {
		props = Props{}
	}
	page := Page{
		Component: component,
		Props:     props,
		URL:       r.URL.RequestURI(),
		Version:   pr.Version,
	}

	w.Header().Set("Vary", "Accept")

	if IsInertiaRequest(r) {
		w.Header().Set(HeaderInertia, "true")
		WriteJSON(w, status, page)
		return
	}

	pageJSON, err := json.Marshal(page)
	if err != nil {
		WriteInternalError(w, "failed to render page")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = shellTemplate.Execute(w, struct {
		Title    string
		PageJSON string
		Entry    string
	}{Title: pr.Title, PageJSON: string(pageJSON), Entry: pr.Entry})
}

// Redirect sends 302 for GET and HEAD and 303 otherwise, so clients re-issue
// the follow-up request as a GET.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	status := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		status = http.StatusFound
	}
	http.Redirect(w, r, url, status)
}

// Location redirects to an external URL. Client-side navigations get a 409
// with X-Inertia-Location so the browser performs a full visit.
func Location(w http.ResponseWriter, r *http.Request, url string) {
	if IsInertiaRequest(r) {
		w.Header().Set(HeaderInertiaLocation, url)
		w.WriteHeader(http.StatusConflict)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
