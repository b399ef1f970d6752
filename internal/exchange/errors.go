package exchange

import "strings"

// IsNonceTooLowOrReplaced reports whether err is the node's rejection of a
// transaction because another transaction already consumed its nonce — evidence
// that a racing transaction sharing the same nonce has won, not a real failure.
// Grounded on the original's retry.rs treatment of "nonce too low" / "replacement
// transaction underpriced" node errors during the submit/cancel race.
func IsNonceTooLowOrReplaced(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "transaction underpriced")
}
