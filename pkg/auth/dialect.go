package auth

import "fmt"

// Message is a decoded JSON frame. Numbers carry the encoding/json default
// type (float64).
type Message = map[string]any

// Dialect classifies frames of one controller wire format. Implementations
// are pure and stateless: one instance, selected once at startup from the
// configured API version, is shared by every session.
type Dialect interface {
	// RequestID returns the request identifier carried by the frame,
	// if any.
	RequestID(msg Message) (uint64, bool)

	// IsLoginRequest reports whether the frame is a login request.
	IsLoginRequest(msg Message) bool

	// Credentials extracts the username and password from a login
	// request.
	Credentials(msg Message) (username, password string)

	// LoginSucceeded reports whether a login response frame indicates
	// success.
	LoginSucceeded(msg Message) bool
}

// DialectFor returns the dialect for the given controller API version.
func DialectFor(apiVersion string) (Dialect, error) {
	switch apiVersion {
	case "rpc":
		return rpcDialect{}, nil
	case "legacy":
		return legacyDialect{}, nil
	}
	return nil, fmt.Errorf("unknown API version %q", apiVersion)
}

func numericID(v any) (uint64, bool) {
	switch id := v.(type) {
	case float64:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	case uint64:
		return id, true
	case int:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	}
	return 0, false
}

func stringField(msg Message, key string) string {
	s, _ := msg[key].(string)
	return s
}

// rpcDialect understands the controller's RPC API.
//
// A login request:
//
//	{"RequestId": 42, "Type": "Admin", "Request": "Login",
//	 "Params": {"AuthTag": "user-admin", "Password": "SECRET"}}
//
// A successful response is {"RequestId": 42, "Response": {}}; a failure
// additionally carries an "Error" field.
type rpcDialect struct{}

func (rpcDialect) RequestID(msg Message) (uint64, bool) {
	return numericID(msg["RequestId"])
}

func (rpcDialect) IsLoginRequest(msg Message) bool {
	params, ok := msg["Params"].(map[string]any)
	if !ok {
		return false
	}
	_, hasTag := params["AuthTag"]
	_, hasPassword := params["Password"]
	return msg["Type"] == "Admin" && msg["Request"] == "Login" &&
		hasTag && hasPassword
}

func (rpcDialect) Credentials(msg Message) (string, string) {
	params, _ := msg["Params"].(map[string]any)
	return stringField(params, "AuthTag"), stringField(params, "Password")
}

func (rpcDialect) LoginSucceeded(msg Message) bool {
	_, failed := msg["Error"]
	return !failed
}

// legacyDialect understands the pre-RPC controller API.
//
// A login request:
//
//	{"request_id": 42, "op": "login", "user": "admin", "password": "SECRET"}
//
// A successful response echoes the request with "result": true; a failure
// carries "err": true.
type legacyDialect struct{}

func (legacyDialect) RequestID(msg Message) (uint64, bool) {
	return numericID(msg["request_id"])
}

func (legacyDialect) IsLoginRequest(msg Message) bool {
	_, hasUser := msg["user"]
	_, hasPassword := msg["password"]
	return msg["op"] == "login" && hasUser && hasPassword
}

func (legacyDialect) Credentials(msg Message) (string, string) {
	return stringField(msg, "user"), stringField(msg, "password")
}

func (legacyDialect) LoginSucceeded(msg Message) bool {
	result, _ := msg["result"].(bool)
	err, _ := msg["err"].(bool)
	return result && !err
}
