package llm

// FirstChoiceContent extracts the first choice's message content, returning a
// typed ErrInvalidResponse when the completion shape is malformed. A malformed
// shape is a contract violation, not a transient failure, so it is never
// retried.
func FirstChoiceContent(resp *ChatResponse, provider string) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", &Error{
			Code:     ErrInvalidResponse,
			Message:  "completion contained no choices",
			Provider: provider,
		}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", &Error{
			Code:     ErrInvalidResponse,
			Message:  "completion choice has no message content",
			Provider: provider,
		}
	}
	return content, nil
}
