package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var payloadValidate = validator.New()

// Validate checks that data decodes into the payload of subject and that
// its required fields are set. Subjects without a payload pass as long as
// data is JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectRunCreated:
		target = &RunCreatedPayload{}
	case SubjectRunStuck:
		target = &RunStuckPayload{}
	case SubjectRunStatus:
		target = &RunStatusPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if err := payloadValidate.Struct(target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
