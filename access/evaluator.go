package access

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
)

const (
	logMsgResolveFailed = shell.LogMsgAuthorizationFailed
	logAttrCapability   = "capability"
)

// Authorizer is the part of an Evaluator the services depend on.
type Authorizer interface {
	Require(ctx context.Context, userID uuid.UUID, libraryID *uuid.UUID, capability Capability) error
	HasRole(ctx context.Context, userID, libraryID uuid.UUID, roles ...core.Role) bool
	Invalidate(userID uuid.UUID)
}

var _ Authorizer = (*Evaluator)(nil)

// Invalidator is implemented by resolvers that cache.
type Invalidator interface {
	Invalidate(userID uuid.UUID)
}

// Evaluator maps (user, library, capability) to allow or deny. It never returns an error:
// anything it cannot decide is denied.
type Evaluator struct {
	resolver RoleResolver
	observer shell.Observer
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the logger that receives resolver failures.
func WithLogger(logger shell.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.observer.Logger = logger
	}
}

// WithContextualLogger sets a context-aware logger for resolver failures.
func WithContextualLogger(logger shell.ContextualLogger) EvaluatorOption {
	return func(e *Evaluator) {
		e.observer.ContextualLogger = logger
	}
}

// NewEvaluator creates an Evaluator on top of resolver.
func NewEvaluator(resolver RoleResolver, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{resolver: resolver}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Authorize reports whether userID holds capability in libraryID.
// libraryID may be nil only for global capabilities; manage_catalog ignores it and is granted
// when the user holds it in any library.
func (e *Evaluator) Authorize(ctx context.Context, userID uuid.UUID, libraryID *uuid.UUID, capability Capability) bool {
	if IsSystem(userID) {
		return true
	}

	if userID == uuid.Nil {
		return false
	}

	if capability.IsGlobal() {
		roles, err := e.resolver.RolesAnywhere(ctx, userID)
		if err != nil {
			e.logResolveFailure(ctx, userID, capability, err)
			return false
		}

		return slices.ContainsFunc(roles, func(role core.Role) bool { return RoleGrants(role, capability) })
	}

	if libraryID == nil {
		return false
	}

	role, found, err := e.resolver.ResolveRole(ctx, userID, *libraryID)
	if err != nil {
		e.logResolveFailure(ctx, userID, capability, err)
		return false
	}

	return found && RoleGrants(role, capability)
}

// Require is Authorize returning core.ErrNotAuthorized on denial.
func (e *Evaluator) Require(ctx context.Context, userID uuid.UUID, libraryID *uuid.UUID, capability Capability) error {
	if !e.Authorize(ctx, userID, libraryID, capability) {
		return core.ErrNotAuthorized
	}

	return nil
}

// HasRole reports whether userID holds one of roles in libraryID. The system identity always does.
func (e *Evaluator) HasRole(ctx context.Context, userID, libraryID uuid.UUID, roles ...core.Role) bool {
	if IsSystem(userID) {
		return true
	}

	role, found, err := e.resolver.ResolveRole(ctx, userID, libraryID)
	if err != nil {
		e.logResolveFailure(ctx, userID, "", err)
		return false
	}

	return found && slices.Contains(roles, role)
}

// Invalidate forwards to the resolver if it caches.
func (e *Evaluator) Invalidate(userID uuid.UUID) {
	if inv, ok := e.resolver.(Invalidator); ok {
		inv.Invalidate(userID)
	}
}

func (e *Evaluator) logResolveFailure(ctx context.Context, userID uuid.UUID, capability Capability, err error) {
	e.observer.Error(ctx, logMsgResolveFailed,
		shell.LogAttrUserID, userID.String(),
		logAttrCapability, string(capability),
		shell.LogAttrError, err.Error(),
	)
}

// LibraryScope returns a pointer to id for Authorize calls.
func LibraryScope(id uuid.UUID) *uuid.UUID {
	return &id
}
