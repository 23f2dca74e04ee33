// Package conv provides checked integer conversions for values read from
// untrusted container headers.
package conv
