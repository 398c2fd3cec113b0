// Package filter decides whether a position fix is trustworthy enough to
// update the anchor watch.
//
// The filter is pure: it reads its Config and the fixes it is handed, and
// reports a Decision with the reason a fix was rejected. Logging rejected
// fixes is left to the caller.
package filter
