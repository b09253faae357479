package rag

import "github.com/docsmith-ai/docsmith/engine/domain"

// Event is one element of the answer stream. It is a closed sum: transports
// perform exhaustive case analysis over References, PartialAnswer, and
// Failure.
type Event interface {
	answerEvent()
}

// References carries the payloads of the retrieved passages. Exactly one
// References event is emitted, before any PartialAnswer.
type References []domain.Payload

// PartialAnswer is one non-empty delta of the synthesized answer, in LLM
// arrival order.
type PartialAnswer string

// Failure is terminal. It may replace the whole stream (when embedding or
// retrieval fails before references are known) or end it mid-answer.
type Failure string

func (References) answerEvent()   {}
func (PartialAnswer) answerEvent() {}
func (Failure) answerEvent()      {}
