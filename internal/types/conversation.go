package types

// ConversationKey derives the identifier for the conversation between two
// users. The ids are sorted so both participants compute the same key
// without coordination: ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
