// Package setup provisions a fresh instance: it migrates the chosen backend,
// creates the administrator, stores the instance identity and finishes with
// a maintenance pass so a new instance starts at the latest update level.
//
// Provisioning runs before the application's composition root exists, so
// every collaborator it needs is assembled inside the Provision call and
// released when it returns.
package setup
