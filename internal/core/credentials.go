package core

// Credentials identify the account the client logs in as. Exactly one of
// Password or Session is needed; Password wins when both are set.
type Credentials struct {
	Username string
	Password string
	Session  string
}

// Validate reports a configuration error for a missing username or secret.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return coreError(ErrCodeConfiguration, "no username given", ErrConfiguration)
	}
	if c.Password == "" && c.Session == "" {
		return coreError(ErrCodeConfiguration, "no password or session given", ErrConfiguration)
	}
	return nil
}
