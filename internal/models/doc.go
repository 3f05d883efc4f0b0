// package models defines the domain types shared across the client.
//
// Entry is the unit of content (a nasheed: title + lyrics) owned by exactly
// one user. User is the identity record derived from the hosted identity
// provider; it is never mutated locally, only replaced wholesale on
// sign-in/out.
package models
