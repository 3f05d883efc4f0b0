// package repositories provides the local persistence layer: a string
// key-value table in SQLite and the entry cache policy built on top of it.
//
// Everything stored here is a hint. The cache is superseded by any
// successful remote fetch and erased on sign-out.
package repositories
