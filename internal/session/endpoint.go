package session

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Endpoint records which mailbox backend a session was created against, so
// a later coordctl/coord-mcp invocation can resume it without having to
// repeat --mailbox-url.
type Endpoint struct {
	Remote bool   `json:"remote"`
	URL    string `json:"url,omitempty"`
}

// The suffix deliberately does not end in ".json" so ListSessions' glob
// (which matches sessions by ".json" extension) never mistakes this file
// for a session document.
func endpointPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".endpoint")
}

// SaveEndpoint persists which mailbox backend sessionID is bound to.
func SaveEndpoint(dir, sessionID string, ep Endpoint) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := endpointPath(dir, sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadEndpoint reads back a previously saved Endpoint. ok is false if none
// was ever recorded (e.g. a session created before this file existed,
// which should be treated as local).
func LoadEndpoint(dir, sessionID string) (ep Endpoint, ok bool, err error) {
	data, err := os.ReadFile(endpointPath(dir, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return Endpoint{}, false, nil
		}
		return Endpoint{}, false, err
	}
	if err := json.Unmarshal(data, &ep); err != nil {
		return Endpoint{}, false, err
	}
	return ep, true, nil
}

// Session ids are opaque (CreateSession mints one with uuid.NewString(),
// unrelated to the display name a caller supplies), but coordctl and
// coord-mcp only ever give an operator one string to type - a project or
// session name. aliasPath/SaveAlias/ResolveSessionID close that gap the
// same way endpointPath does: a small sidecar file keyed by the name the
// operator actually remembers, mapping it to the generated id.
func aliasPath(dir, alias string) string {
	return filepath.Join(dir, alias+".alias")
}

// SaveAlias remembers that alias resolves to sessionID, so a later
// invocation using the same human-chosen name finds the right session
// document instead of a fresh uuid every time.
func SaveAlias(dir, alias, sessionID string) error {
	if alias == sessionID {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := aliasPath(dir, alias)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sessionID), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RemoveAlias forgets a recorded name-to-id mapping. Safe to call on an
// alias that was never saved.
func RemoveAlias(dir, alias string) {
	_ = os.Remove(aliasPath(dir, alias))
}

// ResolveSessionID turns whatever string an operator typed into the
// session id to resume. It tries, in order: an alias recorded by a prior
// create, the session document itself (the string was already an id), and
// finally a scan of ListSessions for a DisplayName match. Returns the
// original string unchanged if nothing resolves, so callers can still
// surface a clean "not found" from ResumeSession.
func ResolveSessionID(dir, nameOrID string) (string, error) {
	if data, err := os.ReadFile(aliasPath(dir, nameOrID)); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if _, err := os.Stat(sessionPath(dir, nameOrID)); err == nil {
		return nameOrID, nil
	}

	sessions, err := ListSessions(dir)
	if err != nil {
		return "", err
	}
	for _, st := range sessions {
		if st.DisplayName == nameOrID {
			return st.SessionID, nil
		}
	}
	return nameOrID, nil
}
