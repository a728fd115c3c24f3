package auth

// Middleware correlates one in-flight login exchange for a session. It is
// driven by the proxy: every browser frame goes through ProcessRequest,
// every controller frame through ProcessResponse. The GUI disconnects on
// logout, so there is no logout path to track.
type Middleware struct {
	user    *User
	dialect Dialect

	pendingID  uint64
	hasPending bool
}

// NewMiddleware returns a middleware updating user according to frames of
// the given dialect.
func NewMiddleware(user *User, dialect Dialect) *Middleware {
	return &Middleware{user: user, dialect: dialect}
}

// InProgress reports whether a login request is awaiting its response.
func (m *Middleware) InProgress() bool {
	return m.hasPending
}

// ProcessRequest inspects a frame travelling from the browser to the
// controller. A login request records its id as pending and copies the
// credentials onto the user eagerly, before confirmation, so the GUI can
// display them as attempting. The latest login request wins: a previous
// pending id is overwritten and its response will be ignored.
func (m *Middleware) ProcessRequest(msg Message) {
	id, ok := m.dialect.RequestID(msg)
	if !ok || !m.dialect.IsLoginRequest(msg) {
		return
	}
	m.pendingID = id
	m.hasPending = true
	m.user.Username, m.user.Password = m.dialect.Credentials(msg)
}

// ProcessResponse inspects a frame travelling from the controller to the
// browser. Only the response matching the pending id finalizes the login:
// on success the user is authenticated keeping the credentials, on failure
// the credentials are cleared. Responses with any other id leave the state
// untouched.
func (m *Middleware) ProcessResponse(msg Message) {
	if !m.hasPending {
		return
	}
	id, ok := m.dialect.RequestID(msg)
	if !ok || id != m.pendingID {
		return
	}
	if m.dialect.LoginSucceeded(msg) {
		m.user.Authenticated = true
	} else {
		m.user.Username = ""
		m.user.Password = ""
	}
	m.hasPending = false
}
