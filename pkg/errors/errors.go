package errors

import "fmt"

// ErrDuplicateToolName is returned when a tool name is duplicated within a server's catalog.
func ErrDuplicateToolName(name string) error {
	return fmt.Errorf("duplicate tool name: %s", name)
}

// ErrDuplicateServerName is returned when an MCP server name is already registered.
func ErrDuplicateServerName(name string) error {
	return fmt.Errorf("duplicate server name: %s", name)
}

// ErrDuplicateOrgName is returned when an organization name is already registered.
func ErrDuplicateOrgName(name string) error {
	return fmt.Errorf("duplicate organization name: %s", name)
}

// ErrInvalidAuthType is returned when a configuration's auth_type has no matching AuthConfig.
func ErrInvalidAuthType(authType string) error {
	return fmt.Errorf("invalid auth type: %s", authType)
}

// ErrToolNotFound is returned when a tool lookup by name fails.
func ErrToolNotFound(name string) error {
	return fmt.Errorf("tool not found: %s", name)
}

// ErrServerNotFound is returned when a server lookup by name fails.
func ErrServerNotFound(name string) error {
	return fmt.Errorf("server not found: %s", name)
}

// ErrBundleNotFound is returned when a bundle lookup fails.
func ErrBundleNotFound(id string) error {
	return fmt.Errorf("bundle not found: %s", id)
}
