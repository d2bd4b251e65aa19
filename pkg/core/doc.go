// Package core provides the domain models, error types, and collaborator
// interfaces shared by the offload packages.
package core
