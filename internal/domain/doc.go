// Package domain defines the core business types for the fitflow campaign
// engine.
//
// Types in this package are pure value objects with no database dependencies
// and no HTTP concerns. They are the shared language between handlers,
// services, and repositories.
package domain
