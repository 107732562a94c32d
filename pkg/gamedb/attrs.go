package gamedb

// Attribute numbers, compatible with TinyMUSH dumps.
const (
	A_PASS  = 5
	A_DESC  = 6
	A_ALIAS = 58
)
