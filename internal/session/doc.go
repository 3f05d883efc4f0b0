// package session contains the client's synchronization core: the auth
// bridge translating the identity provider's session/event model into a
// stable user record, and the reconciler that keeps the visible entry list
// consistent across the local cache, optimistic hints and remote truth.
package session
