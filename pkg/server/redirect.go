package server

import "net/http"

// HTTPSRedirector permanently redirects every request to the equivalent
// HTTPS URL. It backs the optional plain-HTTP listener.
func HTTPSRedirector() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		url := "https://" + r.Host + r.RequestURI
		http.Redirect(w, r, url, http.StatusMovedPermanently)
	})
}
