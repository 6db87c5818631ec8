package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserMalformed       = errors.New("user record is not a JSON object")
	ErrUserMissingID       = errors.New("user record has no id")
	ErrUserMissingUsername = errors.New("user record has no username")
)

// UserID is the backend's identifier for a user. The backend sends it as a
// JSON number, older deployments as a string; both decode to the same value.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a number or string: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if json.Valid([]byte(id)) && isNumeric(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// IsZero reports whether the id counts as missing. A zero id is treated the
// same as an absent one.
func (id UserID) IsZero() bool {
	return id == "" || id == "0"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if (r < '0' || r > '9') && r != '.' && r != 'e' && r != 'E' && r != '+' {
			return false
		}
	}
	return true
}

// User is the record the backend returns on login. Only ID and Username are
// interpreted here; the remaining profile fields are carried in Attributes
// and written back unchanged.
type User struct {
	ID         UserID                     `json:"id"`
	Username   string                     `json:"username"`
	Attributes map[string]json.RawMessage `json:"-"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out User
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return err
		}
		delete(fields, "id")
	}
	if raw, ok := fields["username"]; ok {
		var name *string
		if err := json.Unmarshal(raw, &name); err != nil {
			return fmt.Errorf("username must be a string: %w", err)
		}
		if name != nil {
			out.Username = *name
		}
		delete(fields, "username")
	}
	if len(fields) > 0 {
		out.Attributes = fields
	}

	*u = out
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(u.Attributes)+2)
	for k, v := range u.Attributes {
		fields[k] = v
	}

	id, err := json.Marshal(u.ID)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(u.Username)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	fields["username"] = name

	return json.Marshal(fields)
}

// Attr returns a string profile attribute such as "name" or "email", or ""
// when it is absent or not a string.
func (u *User) Attr(name string) string {
	raw, ok := u.Attributes[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// DisplayName prefers "name surname" and falls back to the username.
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.Attr("name") + " " + u.Attr("surname"))
	if full != "" {
		return full
	}
	return u.Username
}

// Check returns the first shape violation of the record, or nil.
func (u *User) Check() error {
	if u.ID.IsZero() {
		return ErrUserMissingID
	}
	if strings.TrimSpace(u.Username) == "" {
		return ErrUserMissingUsername
	}
	return nil
}

// ParseUser decodes a persisted user record and checks its shape. The error
// is always one of ErrUserMalformed, ErrUserMissingID or ErrUserMissingUsername.
func ParseUser(raw string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, errors.Join(ErrUserMalformed, err)
	}
	if err := u.Check(); err != nil {
		return nil, err
	}
	return &u, nil
}
