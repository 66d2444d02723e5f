// Package units converts currency amounts between the floating display value
// shown to users and the 10^18-scaled integer used by on-chain consumers.
//
// ToFixed18 floors. Consumers downstream expect floor semantics, so
// FromFixed18(ToFixed18(x)) equals floor(x*10^18)/10^18 rather than x.
// Negative and non-finite inputs are rejected with ErrNegative and ErrNotFinite.
package units
