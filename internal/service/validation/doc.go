// Package validation decides whether an email address may receive mail.
//
// Store is the cache of verdicts (valid, invalid, blocked) keyed by address,
// with domain-wide matching: one blocked address blocks its whole domain.
// Validator fills the cache with a local pipeline (syntax, MX, MX host
// resolution) and, optionally, the provider's validation API.
//
// The service layer depends on the Repository interface defined in
// repository.go. Implementations live in repository/postgres,
// repository/sqlite and repository/memory.
package validation
