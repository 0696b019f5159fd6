// Package server hosts a HomeBook instance. It decides at startup whether the
// instance needs maintenance, unattended setup or an operator, and exposes
// the setup endpoints until the instance is running.
package server
