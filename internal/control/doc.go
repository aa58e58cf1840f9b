// Package control defines the shared vocabulary of the control core:
// scopes (the addressable units of environmental control), setpoint
// parameters, and the precedence ordering between control sources.
//
// These types are imported by every domain package (recipe, schedule,
// override, arbiter) and deliberately carry no behaviour beyond
// validation and ordering, so the package has no dependencies.
package control
