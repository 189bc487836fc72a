package ports

// EmailIntake is a long-running source of inbound emails
type EmailIntake interface {
	// Start begins accepting mail
	Start() error

	// Stop stops accepting mail and releases the listener
	Stop() error
}
