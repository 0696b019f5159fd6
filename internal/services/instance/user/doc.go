// Package user defines the account model created during instance setup.
//
// Usernames are normalized to lower case before validation so the same
// person cannot end up with two accounts that differ only in case.
package user
