// Package token provides the unique per-handle identity a lock writes into
// its shared memory segment to prove current ownership. A token is sixteen
// random bytes, the full payload of a lock segment, with a reversible
// textual form for diagnostics.
package token
