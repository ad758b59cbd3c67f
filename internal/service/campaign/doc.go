// Package campaign implements campaign lifecycle management.
//
// The service layer owns the state machine: every transition is validated
// against the allowed-transition table, performed with a status-gated
// conditional update, and recorded as exactly one history row. It depends on
// repository interfaces defined in this package and never imports from the
// API layer.
//
// Repository implementations live in repository/postgres.
package campaign
