// package services contains HTTP clients for the hosted backend's two
// collaborators: the identity provider (GoTrue dialect) and the row store
// (PostgREST dialect).
//
// Both are treated as opaque remote services. The clients translate wire
// failures into the shared error taxonomy ([shared.ErrAuth],
// [shared.ErrTransport], [shared.ErrValidation]) and never retry on their
// own; retry and fallback policy lives with the caller.
package services
