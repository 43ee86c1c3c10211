package prompts

import _ "embed"

// Embedded prompt files

//go:embed answer_system.txt
var answerSystem string

//go:embed answer_concise.txt
var answerConcise string

func AnswerSystem() string  { return answerSystem }
func AnswerConcise() string { return answerConcise }
