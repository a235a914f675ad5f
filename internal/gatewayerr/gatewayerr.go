// Package gatewayerr is the error taxonomy of §7: typed gateway errors,
// each carrying the JSON-RPC code it surfaces as and a stable "kind" the
// client can branch on, mirroring the teacher's internal/common/errorx
// APIError shape.
package gatewayerr

import (
	"fmt"

	"github.com/aci-labs/mcp-gateway/pkg/mcptypes"
)

// Kind is a stable machine-readable error discriminator, carried as
// data.kind in the JSON-RPC error envelope.
type Kind string

const (
	KindParseError                 Kind = "ParseError"
	KindInvalidRequest             Kind = "InvalidRequest"
	KindMethodNotFound             Kind = "MethodNotFound"
	KindInvalidParams              Kind = "InvalidParams"
	KindBundleNotFound             Kind = "BundleNotFound"
	KindConfigNotFound             Kind = "ConfigNotFound"
	KindServerNotConfigured        Kind = "ServerNotConfigured"
	KindToolNotFound               Kind = "ToolNotFound"
	KindToolNotEnabled             Kind = "ToolNotEnabled"
	KindNotConnected               Kind = "NotConnected"
	KindReauthenticationRequired   Kind = "ReauthenticationRequired"
	KindCredentialProviderRejected Kind = "CredentialProviderRejected"
	KindUpstreamTransient          Kind = "UpstreamTransient"
	KindUpstreamPermanent          Kind = "UpstreamPermanent"
	KindUpstreamSessionTerminated  Kind = "UpstreamSessionTerminated"
	KindStorageError               Kind = "StorageError"
	KindEmbeddingError             Kind = "EmbeddingError"
	KindSanitization               Kind = "Sanitization"
	KindInternal                   Kind = "Internal"
)

// Error is a typed gateway error: a Kind, the JSON-RPC code it surfaces
// as, a human-readable message, and optional structured data.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Data    map[string]any
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Kind, e.Message) }

// ToJSONRPC renders e as the data payload of a JSON-RPC error response,
// always including data.kind so the client can branch on auth failures
// (§7, "ReauthenticationRequired").
func (e *Error) ToJSONRPC(id any) *mcptypes.Response {
	data := map[string]any{"kind": string(e.Kind)}
	for k, v := range e.Data {
		data[k] = v
	}
	return mcptypes.NewErrorResponse(id, e.Code, e.Message, data)
}

func New(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) WithData(key string, value any) *Error {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data[key] = value
	return e
}

// Constructors for the taxonomy in §7. Routing errors use -32600/-32602
// per the spec's table; everything else not explicitly protocol-level
// collapses to -32603 (internal error).

func ParseError(msg string) *Error { return New(KindParseError, mcptypes.CodeParseError, msg) }
func InvalidRequest(msg string) *Error {
	return New(KindInvalidRequest, mcptypes.CodeInvalidRequest, msg)
}
func MethodNotFound(method string) *Error {
	return New(KindMethodNotFound, mcptypes.CodeMethodNotFound, fmt.Sprintf("method not found: %s", method))
}
func InvalidParams(msg string) *Error { return New(KindInvalidParams, mcptypes.CodeInvalidParams, msg) }

func BundleNotFound(bundleID string) *Error {
	return New(KindBundleNotFound, mcptypes.CodeInvalidRequest, fmt.Sprintf("bundle not found: %s", bundleID))
}
func ConfigNotFound(serverID string) *Error {
	return New(KindConfigNotFound, mcptypes.CodeInvalidParams, fmt.Sprintf("no configuration for server: %s", serverID))
}
func ServerNotConfigured(toolName string) *Error {
	return New(KindServerNotConfigured, mcptypes.CodeInvalidParams, fmt.Sprintf("bundle has no configuration for tool's server: %s", toolName))
}
func ToolNotFound(name string) *Error {
	return New(KindToolNotFound, mcptypes.CodeInvalidParams, fmt.Sprintf("tool not found: %s", name))
}
func ToolNotEnabled(name string) *Error {
	return New(KindToolNotEnabled, mcptypes.CodeInvalidParams, fmt.Sprintf("tool not enabled: %s", name))
}

func NotConnected(configurationID string) *Error {
	return New(KindNotConnected, mcptypes.CodeInternalError, fmt.Sprintf("no connected account for configuration: %s", configurationID))
}
func ReauthenticationRequired(reason string) *Error {
	return New(KindReauthenticationRequired, mcptypes.CodeInternalError, reason)
}
func CredentialProviderRejected(reason string) *Error {
	return New(KindCredentialProviderRejected, mcptypes.CodeInternalError, reason)
}

func UpstreamTransient(reason string) *Error {
	return New(KindUpstreamTransient, mcptypes.CodeInternalError, reason)
}
func UpstreamPermanent(reason string) *Error {
	return New(KindUpstreamPermanent, mcptypes.CodeInternalError, reason)
}
func UpstreamSessionTerminated(reason string) *Error {
	return New(KindUpstreamSessionTerminated, mcptypes.CodeInternalError, reason)
}

func StorageError(reason string) *Error {
	return New(KindStorageError, mcptypes.CodeInternalError, reason)
}
func EmbeddingError(reason string) *Error {
	return New(KindEmbeddingError, mcptypes.CodeInternalError, reason)
}
func Sanitization(reason string) *Error {
	return New(KindSanitization, mcptypes.CodeInternalError, reason)
}
