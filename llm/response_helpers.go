package llm

import (
	"errors"
	"fmt"
	"strings"
)

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// Text returns the trimmed content of the first choice.
func Text(resp *ChatResponse) (string, error) {
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", &Error{Code: ErrInvalidResponse, Message: err.Error(), Cause: err}
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

func asError(err error, target **Error) bool {
	return err != nil && errors.As(err, target)
}
