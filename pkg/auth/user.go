// Package auth tracks the login state of a proxied WebSocket session.
//
// The proxy never answers login requests itself: it watches the login
// exchange between the GUI and the controller and mirrors the outcome into
// a per-session User. Three pieces cooperate:
//
//   - User: the credentials and authentication state of one session;
//   - Dialect: pure classifiers for one controller wire format, able to
//     recognize login requests and responses;
//   - Middleware: the stateful correlator that pairs a login request with
//     its response and updates the User accordingly.
package auth

// User is the current WebSocket session user. A session starts anonymous;
// only the Middleware mutates it.
type User struct {
	Username      string
	Password      string
	Authenticated bool
}

// String returns the username and authentication state, for logging.
func (u *User) String() string {
	name := u.Username
	if name == "" {
		name = "anonymous"
	}
	if u.Authenticated {
		return name + " (authenticated)"
	}
	return name + " (not authenticated)"
}
